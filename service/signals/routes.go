package signals

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/KAsare1/Kodefx-capital/cmd/utils"
	"github.com/KAsare1/Kodefx-capital/service/capital"
	"github.com/KAsare1/Kodefx-capital/service/ledger"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type SignalHandler struct {
	ledger *ledger.Service
	auth   mux.MiddlewareFunc
}

func NewSignalHandler(svc *ledger.Service, auth mux.MiddlewareFunc) *SignalHandler {
	return &SignalHandler{ledger: svc, auth: auth}
}

func (h *SignalHandler) RegisterRoutes(router *mux.Router) {
	signalRouter := router.PathPrefix("/signal").Subrouter()
	signalRouter.Use(h.auth)

	// Schedule
	signalRouter.HandleFunc("/schedule", h.CreateSchedule).Methods(http.MethodPost)
	signalRouter.HandleFunc("/schedule", h.GetSchedule).Methods(http.MethodGet)
	signalRouter.HandleFunc("/schedule", h.DeleteSchedule).Methods(http.MethodDelete)
	signalRouter.HandleFunc("/slots", h.ListSlots).Methods(http.MethodGet)

	// Daily ledger
	signalRouter.HandleFunc("/daily", h.GetDailyEntries).Methods(http.MethodGet)
	signalRouter.HandleFunc("/daily/{entryId:[0-9]+}", h.GetEntry).Methods(http.MethodGet)
	signalRouter.HandleFunc("/daily/{entryId:[0-9]+}", h.ResolveEntry).Methods(http.MethodPut)
	signalRouter.HandleFunc("/deposit", h.AddDeposit).Methods(http.MethodPut)
	signalRouter.HandleFunc("/grouped", h.GroupByDay).Methods(http.MethodGet)
	signalRouter.HandleFunc("/account", h.PurgeAccount).Methods(http.MethodDelete)

	// Calculators
	signalRouter.HandleFunc("/simulate", h.Simulate).Methods(http.MethodGet)
	signalRouter.HandleFunc("/reconcile", h.Reconcile).Methods(http.MethodGet)
}

type reminderSetting struct {
	ID        interface{} `json:"id"`
	StartTime string      `json:"startTime"`
	EndTime   string      `json:"endTime"`
	IsEnabled bool        `json:"isEnabled"`
}

type createScheduleRequest struct {
	StartingCapital  *float64          `json:"startingCapital"`
	NumberOfSignals  int               `json:"numberOfSignals"`
	ReminderSettings []reminderSetting `json:"reminderSettings"`
	TotalSignals     int               `json:"totalSignals"`
	TradeSchedule    string            `json:"tradeSchedule"`
	Reminder         string            `json:"reminder"`
}

// CreateSchedule sets up the user's signal schedule from the account form.
func (h *SignalHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req createScheduleRequest
	if !decode(w, r, &req) {
		return
	}
	if req.StartingCapital == nil {
		utils.WriteError(w, http.StatusBadRequest, "startingCapital is required")
		return
	}

	slots := make([]ledger.SlotRequest, len(req.ReminderSettings))
	for i, s := range req.ReminderSettings {
		slots[i] = ledger.SlotRequest{
			Label:           slotLabel(s.ID),
			StartTime:       s.StartTime,
			EndTime:         s.EndTime,
			ReminderEnabled: s.IsEnabled,
		}
	}

	res, err := h.ledger.Setup(r.Context(), userID, ledger.SetupRequest{
		StartingCapital: *req.StartingCapital,
		ElapsedSignals:  req.NumberOfSignals,
		SignalsPerDay:   req.TotalSignals,
		TradeSchedule:   ledger.TradeSchedule(req.TradeSchedule),
		ReminderPolicy:  req.Reminder,
		Slots:           slots,
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Signal schedule created successfully", res)
}

func slotLabel(id interface{}) string {
	switch v := id.(type) {
	case nil:
		return ""
	case float64:
		return "Signal " + strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		if v == "" {
			return ""
		}
		return "Signal " + v
	default:
		return fmt.Sprintf("Signal %v", v)
	}
}

func (h *SignalHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	schedule, err := h.ledger.GetSchedule(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", schedule)
}

// DeleteSchedule removes the schedule. Slots and history are kept.
func (h *SignalHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.ledger.DeleteSchedule(r.Context(), userID); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Signal schedule deleted successfully", nil)
}

func (h *SignalHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	slots, err := h.ledger.ListSlots(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", slots)
}

// GetDailyEntries returns today's entries, creating them on the first call of
// the day.
func (h *SignalHandler) GetDailyEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	res, err := h.ledger.EnsureTodayEntries(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	if res.Created {
		utils.WriteSuccess(w, http.StatusCreated, "Daily signals created successfully", res)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Daily signals already exist", res)
}

func (h *SignalHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	entryID, ok := entryIDParam(w, r)
	if !ok {
		return
	}
	detail, err := h.ledger.Entry(r.Context(), userID, entryID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", detail)
}

type resolveRequest struct {
	Received *bool `json:"received"`
}

func (h *SignalHandler) ResolveEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	entryID, ok := entryIDParam(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Received == nil {
		utils.WriteError(w, http.StatusBadRequest, "received is required")
		return
	}

	res, err := h.ledger.ResolveEntry(r.Context(), userID, entryID, *req.Received)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Signal updated successfully", res)
}

type depositRequest struct {
	Capital *float64 `json:"capital"`
}

func (h *SignalHandler) AddDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Capital == nil {
		utils.WriteError(w, http.StatusBadRequest, "capital is required")
		return
	}

	res, err := h.ledger.AddDeposit(r.Context(), userID, *req.Capital)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Deposit added successfully", res)
}

func (h *SignalHandler) GroupByDay(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	groups, err := h.ledger.GroupByDay(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", groups)
}

// PurgeAccount deletes the schedule, its slots and all ledger history.
func (h *SignalHandler) PurgeAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	res, err := h.ledger.PurgeAccount(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Signal account deleted successfully", res)
}

type simulationResponse struct {
	StartingCapital float64              `json:"startingCapital"`
	FinalCapital    float64              `json:"finalCapital"`
	Breakdown       []capital.StepReport `json:"breakdown"`
}

func (h *SignalHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	start := q.number("capital", true)
	count := q.integer("count")
	if q.err != nil {
		utils.WriteError(w, http.StatusBadRequest, q.err.Error())
		return
	}

	sim, err := h.ledger.Simulate(start, count)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", simulationResponse{
		StartingCapital: sim.StartingCapital,
		FinalCapital:    sim.FinalCapital,
		Breakdown:       sim.Reports(),
	})
}

type reconciliationResponse struct {
	RecentCapital   float64              `json:"recentCapital"`
	ElapsedSignals  int                  `json:"elapsedSignals"`
	PreviousCapital float64              `json:"previousCapital"`
	Breakdown       []capital.StepReport `json:"breakdown"`
}

func (h *SignalHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	recent := q.number("recentCapital", true)
	elapsed := q.integer("elapsed")
	total := q.integer("total")
	if q.err != nil {
		utils.WriteError(w, http.StatusBadRequest, q.err.Error())
		return
	}

	rec, err := h.ledger.Reconcile(recent, elapsed, total)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", reconciliationResponse{
		RecentCapital:   rec.RecentCapital,
		ElapsedSignals:  rec.ElapsedSignals,
		PreviousCapital: rec.PreviousCapital,
		Breakdown:       capital.Simulation{Steps: rec.Breakdown}.Reports(),
	})
}

func (h *SignalHandler) userID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return 0, false
	}
	return userID, true
}

func entryIDParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["entryId"], 10, 64)
	if err != nil || id == 0 {
		utils.WriteError(w, http.StatusBadRequest, "Invalid signal ID")
		return 0, false
	}
	return uint(id), true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// StatusFor maps a ledger error to its HTTP status.
func StatusFor(err error) int {
	switch ledger.Kind(err) {
	case ledger.ErrValidation:
		return http.StatusBadRequest
	case ledger.ErrNotFound:
		return http.StatusNotFound
	case ledger.ErrAlreadyExists, ledger.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("signal request failed")
		utils.WriteError(w, status, "Internal server error")
		return
	}
	utils.WriteError(w, status, err.Error())
}

// query reads typed URL parameters, keeping the first error.
type query struct {
	r   *http.Request
	err error
}

func (q *query) number(key string, required bool) float64 {
	v := q.r.URL.Query().Get(key)
	if v == "" {
		if required && q.err == nil {
			q.err = fmt.Errorf("%s is required", key)
		}
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil && q.err == nil {
		q.err = errors.New(key + " must be a number")
	}
	return f
}

func (q *query) integer(key string) int {
	v := q.r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil && q.err == nil {
		q.err = errors.New(key + " must be an integer")
	}
	return n
}
