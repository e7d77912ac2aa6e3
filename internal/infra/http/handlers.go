package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ai-answering-machine/internal/application"
	"ai-answering-machine/internal/domain"
	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/usecase"
)

type errorBody struct {
	Error  string             `json:"error"`
	Fields []model.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Fields: verr.Errors})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, domain.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownField), errors.Is(err, domain.ErrUnsupportedImage):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrUploadFailed):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func notWired(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotImplemented, errorBody{Error: "not available"})
}

// ---- draft ----

func (s *Server) getDraft(w http.ResponseWriter, r *http.Request) {
	if s.deps.Drafts == nil {
		notWired(w)
		return
	}
	d, err := s.deps.Drafts.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type draftPatchRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (s *Server) patchDraft(w http.ResponseWriter, r *http.Request) {
	if s.deps.Drafts == nil {
		notWired(w)
		return
	}
	var req draftPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	d, err := s.deps.Drafts.SetField(r.Context(), model.DraftField(req.Field), req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) beginDraft(w http.ResponseWriter, r *http.Request) {
	if s.deps.Drafts == nil {
		notWired(w)
		return
	}
	var req struct {
		TaskType string `json:"taskType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	d, err := s.deps.Drafts.Begin(r.Context(), model.TaskType(req.TaskType))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) resetDraft(w http.ResponseWriter, r *http.Request) {
	if s.deps.Drafts == nil {
		notWired(w)
		return
	}
	d, err := s.deps.Drafts.Reset(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ---- tasks ----

type taskCreatedResponse struct {
	TaskID   string `json:"taskId"`
	ImageURL string `json:"imageUrl,omitempty"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		notWired(w)
		return
	}
	task, err := s.deps.Tasks.SubmitDraft(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, taskCreatedResponse{TaskID: task.TaskID})
}

func (s *Server) createImageTask(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		notWired(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUpload+1<<20)
	if err := r.ParseMultipartForm(s.deps.MaxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid multipart form"})
		return
	}
	file, hdr, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing image"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "read image"})
		return
	}

	crop, err := parseCrop(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	task, err := s.deps.Tasks.SubmitImage(r.Context(), hdr.Filename, data, crop)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, taskCreatedResponse{TaskID: task.TaskID, ImageURL: task.ImageURL})
}

// parseCrop reads the optional crop form fields. crop=default asks for the
// default centred crop.
func parseCrop(r *http.Request) (*model.CropRect, error) {
	if r.FormValue("crop") == "default" {
		return &model.CropRect{}, nil
	}
	if r.FormValue("width") == "" && r.FormValue("height") == "" {
		return nil, nil
	}
	var rect model.CropRect
	for name, dst := range map[string]*int{"x": &rect.X, "y": &rect.Y, "width": &rect.Width, "height": &rect.Height} {
		v := r.FormValue(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, errors.New("invalid crop " + name)
		}
		*dst = n
	}
	return &rect, nil
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	page, err := s.deps.Facade.OpenTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		notWired(w)
		return
	}
	if err := s.deps.Tasks.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- search ----

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func parseDate(v string, loc *time.Location) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"), s.deps.Facade.Loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid from"})
		return
	}
	to, err := parseDate(q.Get("to"), s.deps.Facade.Loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid to"})
		return
	}
	groups := s.deps.Facade.ListRecords(r.Context(), application.RecordQuery{Text: q.Get("q"), From: from, To: to})
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *Server) searchQuery(r *http.Request) (*model.TaskFilter, model.TaskSort, error) {
	q := r.URL.Query()
	filter := &model.TaskFilter{SearchText: q.Get("q")}
	start, err := parseDate(q.Get("start"), s.deps.Facade.Loc)
	if err != nil {
		return nil, model.TaskSort{}, errors.New("invalid start")
	}
	end, err := parseDate(q.Get("end"), s.deps.Facade.Loc)
	if err != nil {
		return nil, model.TaskSort{}, errors.New("invalid end")
	}
	if start != nil && end != nil {
		from, to := usecase.DayRange(*start, *end, s.deps.Facade.Loc)
		filter.StartDate, filter.EndDate = &from, &to
	}

	sort := model.DefaultSort
	switch f := model.SortField(q.Get("sort")); f {
	case "":
	case model.SortByCreatedAt, model.SortByUpdatedAt:
		sort.Field = f
	default:
		return nil, model.TaskSort{}, errors.New("invalid sort")
	}
	switch d := model.SortDirection(strings.ToLower(q.Get("dir"))); d {
	case "":
	case model.SortAsc, model.SortDesc:
		sort.Direction = d
	default:
		return nil, model.TaskSort{}, errors.New("invalid dir")
	}
	return filter, sort, nil
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	if s.deps.Search == nil {
		notWired(w)
		return
	}
	filter, sort, err := s.searchQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.deps.Search.Search(r.Context(), filter, sort)})
}

func (s *Server) liveRecords(w http.ResponseWriter, r *http.Request) {
	if s.deps.Search == nil {
		notWired(w)
		return
	}
	filter, sort, err := s.searchQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	es, ok := newEventStream(w)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}
	watch := s.deps.Search.Watch(r.Context(), filter, sort)
	defer watch.Cancel()
	for {
		select {
		case <-r.Context().Done():
			return
		case groups := <-watch.C:
			if err := es.send("records", groups); err != nil {
				return
			}
		}
	}
}

func (s *Server) streamNotices(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notices == nil {
		notWired(w)
		return
	}
	es, ok := newEventStream(w)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}
	notices, cancel := s.deps.Notices.subscribe()
	defer cancel()
	for {
		select {
		case <-r.Context().Done():
			return
		case n := <-notices:
			if err := es.send("notice", n); err != nil {
				return
			}
		}
	}
}

// ---- answers ----

func (s *Server) streamAnswer(w http.ResponseWriter, r *http.Request) {
	if s.deps.Answers == nil {
		notWired(w)
		return
	}
	s.answerStream(w, r, s.deps.Answers.Open)
}

func (s *Server) regenerate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Answers == nil {
		notWired(w)
		return
	}
	s.answerStream(w, r, s.deps.Answers.Regenerate)
}

// answerStream subscribes to the task's answer, runs trigger and streams
// states until the answer settles or nothing is generating.
func (s *Server) answerStream(w http.ResponseWriter, r *http.Request, trigger func(context.Context, string) (usecase.AnswerState, error)) {
	taskID := chi.URLParam(r, "id")
	box := newLatest[usecase.AnswerState]()
	cancel := s.deps.Answers.Watch(taskID, box.put)
	defer cancel()

	state, err := trigger(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	es, ok := newEventStream(w)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}
	// the watcher may already hold a newer state than the trigger returned
	select {
	case st := <-box.c:
		state = st
	default:
	}
	for {
		if err := es.send("answer", state); err != nil {
			return
		}
		if !state.IsGenerating {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case state = <-box.c:
		}
	}
}

// ---- conversation ----

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil || s.deps.Tasks == nil {
		notWired(w)
		return
	}
	taskID := chi.URLParam(r, "id")
	if _, err := s.deps.Tasks.Get(r.Context(), taskID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": s.deps.Chat.History(r.Context(), taskID)})
}

func (s *Server) clearConversation(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		notWired(w)
		return
	}
	if err := s.deps.Chat.Clear(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type askRequest struct {
	Message string `json:"message"`
}

type askResult struct {
	msgs []model.ChatMessage
	err  error
}

func (s *Server) askFollowUp(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil || s.deps.Tasks == nil {
		notWired(w)
		return
	}
	taskID := chi.URLParam(r, "id")
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, &model.ValidationError{Errors: []model.FieldError{{Field: model.FieldMessage, Message: model.FieldMessageRequiredMsg}}})
		return
	}
	if _, err := s.deps.Tasks.Get(r.Context(), taskID); err != nil {
		writeError(w, err)
		return
	}

	es, ok := newEventStream(w)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}
	box := newLatest[usecase.ChatState]()
	cancel := s.deps.Chat.Watch(taskID, box.put)
	defer cancel()

	// the reply is kept even if the client goes away
	done := make(chan askResult, 1)
	runCtx := context.WithoutCancel(r.Context())
	go func() {
		msgs, err := s.deps.Facade.AskFollowUp(runCtx, taskID, req.Message)
		done <- askResult{msgs: msgs, err: err}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case st := <-box.c:
			if err := es.send("chat", st); err != nil {
				return
			}
		case res := <-done:
			if res.err != nil {
				_ = es.send("error", errorBody{Error: res.err.Error()})
				return
			}
			_ = es.send("done", map[string]any{"messages": res.msgs})
			return
		}
	}
}
