// internal/app/features/characters/handler.go

// Package characters is each member's character sheet: one sheet per
// account, edited as a whole and saved in one shot.
package characters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	uierrors "github.com/guildhall-club/guildhall/internal/app/features/errors"
	characterstore "github.com/guildhall-club/guildhall/internal/app/store/characters"
	userstore "github.com/guildhall-club/guildhall/internal/app/store/users"
	"github.com/guildhall-club/guildhall/internal/app/system/authz"
	"github.com/guildhall-club/guildhall/internal/app/system/timeouts"
	"github.com/guildhall-club/guildhall/internal/app/system/viewdata"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	DB     *mongo.Database
	Sheets *characterstore.Store
	Users  *userstore.Store
	Log    *zap.Logger
}

func NewHandler(db *mongo.Database, logger *zap.Logger) *Handler {
	return &Handler{
		DB:     db,
		Sheets: characterstore.New(db),
		Users:  userstore.New(db),
		Log:    logger,
	}
}

type sheetVM struct {
	viewdata.BaseVM
	HasSheet  bool
	Sheet     *models.CharacterSheet
	SheetJSON string
	Error     string
}

// Show handles GET /characters: the signed-in member's own sheet, or an
// invitation to create one.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := authz.UserCtx(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	vm := sheetVM{
		BaseVM: viewdata.NewBaseVM(r, h.DB, "Character sheet", "/"),
	}

	sheet, err := h.Sheets.GetByOwner(ctx, userID)
	switch {
	case err == nil:
		vm.HasSheet = true
		vm.Sheet = sheet
	case errors.Is(err, characterstore.ErrNotFound):
		// First visit; the page offers to start a sheet.
	default:
		h.Log.Error("characters: load sheet failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}

	templates.Render(w, r, "characters/sheet", vm)
}

// ShowEdit handles GET /characters/edit. The editor works on the whole
// sheet as JSON; a fresh sheet starts from a blank scaffold.
func (h *Handler) ShowEdit(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := authz.UserCtx(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	sheet, err := h.Sheets.GetByOwner(ctx, userID)
	if err != nil {
		if !errors.Is(err, characterstore.ErrNotFound) {
			h.Log.Error("characters: load sheet failed", zap.Error(err))
			uierrors.RenderServerError(w, r)
			return
		}
		sheet = blankSheet()
	}

	raw, err := json.Marshal(sheet)
	if err != nil {
		h.Log.Error("characters: marshal sheet failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}

	vm := sheetVM{
		BaseVM:    viewdata.NewBaseVM(r, h.DB, "Edit character", "/characters"),
		Sheet:     sheet,
		SheetJSON: string(raw),
	}
	templates.Render(w, r, "characters/edit", vm)
}

// Save handles POST /characters. The editor submits the sheet as one
// JSON document; ownership comes from the session, never the payload.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := authz.UserCtx(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var sheet models.CharacterSheet
	if err := json.Unmarshal([]byte(r.FormValue("sheet")), &sheet); err != nil {
		h.rerender(w, r, r.FormValue("sheet"), "The sheet couldn't be read. Please try again.")
		return
	}
	if msg := validateSheet(&sheet); msg != "" {
		h.rerender(w, r, r.FormValue("sheet"), msg)
		return
	}
	assignRowIDs(&sheet)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, err := h.Sheets.Upsert(ctx, userID, sheet); err != nil {
		h.Log.Error("characters: save failed", zap.Error(err), zap.String("user_id", userID.Hex()))
		h.rerender(w, r, r.FormValue("sheet"), "Couldn't save the sheet. Please try again.")
		return
	}

	http.Redirect(w, r, "/characters", http.StatusSeeOther)
}

type partyRow struct {
	OwnerAlias string
	Sheet      models.CharacterSheet
}

type partyVM struct {
	viewdata.BaseVM
	Rows []partyRow
}

// Party handles GET /characters/party: every member's sheet, for staff
// planning sessions.
func (h *Handler) Party(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	sheets, err := h.Sheets.ListAll(ctx)
	if err != nil {
		h.Log.Error("characters: list sheets failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}

	users, err := h.Users.List(ctx)
	if err != nil {
		h.Log.Error("characters: list users failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}
	aliasOf := make(map[string]string, len(users))
	for _, u := range users {
		name := u.DisplayName
		if u.Alias != nil {
			name = *u.Alias
		}
		aliasOf[u.ID.Hex()] = name
	}

	rows := make([]partyRow, 0, len(sheets))
	for _, s := range sheets {
		rows = append(rows, partyRow{
			OwnerAlias: aliasOf[s.OwnerID.Hex()],
			Sheet:      s,
		})
	}

	vm := partyVM{
		BaseVM: viewdata.NewBaseVM(r, h.DB, "Party roster", "/characters"),
		Rows:   rows,
	}
	templates.Render(w, r, "characters/party", vm)
}

// Delete handles POST /characters/delete.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := authz.UserCtx(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Sheets.Delete(ctx, userID); err != nil && !errors.Is(err, characterstore.ErrNotFound) {
		h.Log.Error("characters: delete failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}

	http.Redirect(w, r, "/characters", http.StatusSeeOther)
}

func (h *Handler) rerender(w http.ResponseWriter, r *http.Request, rawSheet, msg string) {
	vm := sheetVM{
		BaseVM:    viewdata.NewBaseVM(r, h.DB, "Edit character", "/characters"),
		SheetJSON: rawSheet,
		Error:     msg,
	}
	w.WriteHeader(http.StatusUnprocessableEntity)
	templates.Render(w, r, "characters/edit", vm)
}

func validateSheet(s *models.CharacterSheet) string {
	if strings.TrimSpace(s.CharacterName) == "" {
		return "The character needs a name."
	}
	if s.Level < 0 || s.Level > 99 {
		return "Level must be between 0 and 99."
	}
	if s.PortraitURL != "" && !strings.HasPrefix(s.PortraitURL, "https://") {
		return "The portrait URL must start with https://."
	}
	for k := range s.Attributes {
		if !knownAttribute(k) {
			return "Unknown attribute " + strconv.Quote(k) + "."
		}
	}
	return ""
}

func knownAttribute(k string) bool {
	for _, a := range models.SheetAttributes {
		if k == a {
			return true
		}
	}
	return false
}

// assignRowIDs gives new proficiency/skill/inventory rows a stable id.
// Existing rows keep theirs so client-side state survives saves.
func assignRowIDs(s *models.CharacterSheet) {
	for i := range s.Proficiencies {
		if s.Proficiencies[i].ID == "" {
			s.Proficiencies[i].ID = uuid.NewString()
		}
	}
	for i := range s.Skills {
		if s.Skills[i].ID == "" {
			s.Skills[i].ID = uuid.NewString()
		}
	}
	for ci := range s.InventoryCategories {
		cat := &s.InventoryCategories[ci]
		if cat.ID == "" {
			cat.ID = uuid.NewString()
		}
		for ii := range cat.Items {
			if cat.Items[ii].ID == "" {
				cat.Items[ii].ID = uuid.NewString()
			}
		}
	}
}

func blankSheet() *models.CharacterSheet {
	attrs := make(map[string]int, len(models.SheetAttributes))
	for _, k := range models.SheetAttributes {
		attrs[k] = 10
	}
	return &models.CharacterSheet{
		Level:      1,
		Attributes: attrs,
	}
}
