package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"voicecal/internal/models"
	"voicecal/internal/normalize"
	"voicecal/internal/pipeline"
)

const (
	defaultDays = 7
	maxDays     = 90
)

type itemResponse struct {
	pipeline.Item
	State   pipeline.State `json:"state"`
	Warning string         `json:"warning,omitempty"`
	Display string         `json:"display"`
}

type createRequest struct {
	Transcript string `json:"transcript"`
}

type failureResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type summaryResponse struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Adjusted  int               `json:"adjusted"`
	Skipped   int               `json:"skipped"`
	Items     []itemResponse    `json:"items"`
	Failures  []failureResponse `json:"failures"`
}

func (s *Server) view(it pipeline.Item) itemResponse {
	return itemResponse{
		Item:    it,
		State:   it.State(),
		Warning: it.Warning(),
		Display: normalize.Describe(it.Event, s.batches.Location()),
	}
}

// createItem accepts either a multipart form with an "audio" file or a JSON
// body with a transcript.
func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		item pipeline.Item
		err  error
	)
	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, ferr := r.FormFile("audio")
		if ferr != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("missing audio file: %v", ferr))
			return
		}
		defer file.Close()
		audio, rerr := io.ReadAll(file)
		if rerr != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("could not read audio: %v", rerr))
			return
		}
		item, err = s.batch(r).ProcessAudio(r.Context(), audio, header.Filename)
	default:
		var req createRequest
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", derr))
			return
		}
		item, err = s.batch(r).ProcessTranscript(r.Context(), req.Transcript)
	}
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, s.view(item))
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	items := s.batch(r).Items()
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, s.view(it))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.batch(r).Get(mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.view(it))
}

func (s *Server) beginEdit(w http.ResponseWriter, r *http.Request) {
	it, err := s.batch(r).BeginEdit(mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.view(it))
}

func (s *Server) applyEdit(w http.ResponseWriter, r *http.Request) {
	var ev models.StructuredEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid event: %v", err))
		return
	}
	it, err := s.batch(r).ApplyEdit(mux.Vars(r)["id"], ev)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.view(it))
}

func (s *Server) cancelEdit(w http.ResponseWriter, r *http.Request) {
	it, err := s.batch(r).CancelEdit(mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.view(it))
}

func (s *Server) scheduleItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.batch(r).Schedule(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.view(it))
}

// scheduleAll always answers 200; per-item failures are in the body.
func (s *Server) scheduleAll(w http.ResponseWriter, r *http.Request) {
	sum := s.batch(r).ScheduleAll(r.Context())
	resp := summaryResponse{
		Succeeded: len(sum.Succeeded),
		Failed:    len(sum.Failed),
		Adjusted:  sum.Adjusted,
		Skipped:   sum.Skipped,
		Items:     make([]itemResponse, 0, len(sum.Succeeded)),
		Failures:  make([]failureResponse, 0, len(sum.Failed)),
	}
	for _, it := range sum.Succeeded {
		resp.Items = append(resp.Items, s.view(it))
	}
	for _, f := range sum.Failed {
		resp.Failures = append(resp.Failures, failureResponse{ID: f.ID, Error: f.Err.Error()})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.batch(r).Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listCalendar(w http.ResponseWriter, r *http.Request) {
	days := defaultDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxDays {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("days must be between 1 and %d", maxDays))
			return
		}
		days = n
	}
	if s.calendar == nil {
		respondErr(w, errors.New("no calendar configured"))
		return
	}

	from := s.now()
	entries, err := s.calendar.Upcoming(r.Context(), from, from.Add(time.Duration(days)*24*time.Hour))
	if err != nil {
		respondErr(w, err)
		return
	}
	if entries == nil {
		entries = []models.CalendarEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}
