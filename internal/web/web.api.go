// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"kilnctl/internal/controller"
	"kilnctl/internal/controller/schedule"
)

// ControlResult answers POST /api/control and websocket commands.
type ControlResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

const (
	actionSchedules  = "schedules"
	defaultProjectC  = 20.0
	reasonBadRequest = "bad_request"
	reasonForbidden  = "forbidden"
)

// scheduleList answers action=schedules in the shape the dashboard
// scripts expect.
type scheduleList struct {
	Success   bool               `json:"success"`
	Schedules []schedule.Summary `json:"schedules"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.kiln.Status())
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.summaries())
}

func (s *Server) summaries() []schedule.Summary {
	start := s.kiln.Status().AvgTemp
	if start <= 0 {
		start = defaultProjectC
	}
	return schedule.Summarize(s.kiln.Presets(), start)
}

// handleControl takes the form fields action, value and index.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if !sameOrigin(r, true) {
		s.log.Warn("refused control from origin %q", r.Header.Get("Origin"))
		writeJSON(w, http.StatusForbidden, ControlResult{Message: "cross-origin request refused", Reason: reasonForbidden})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, ControlResult{Message: "invalid form", Reason: reasonBadRequest})
		return
	}

	action := r.PostForm.Get("action")
	if action == actionSchedules {
		writeJSON(w, http.StatusOK, scheduleList{Success: true, Schedules: s.summaries()})
		return
	}

	cmd, res, ok := parseControl(action, r.PostForm.Get("value"), r.PostForm.Get("index"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}

	res, code := s.submit(r.Context(), cmd)
	writeJSON(w, code, res)
}

func parseControl(action, value, index string) (controller.Command, ControlResult, bool) {
	cmd := controller.Command{Action: controller.Action(action)}
	switch cmd.Action {
	case controller.ActionStart, controller.ActionStop, controller.ActionEmergency, controller.ActionReset:
	case controller.ActionSetSetpoint:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return cmd, ControlResult{Message: "invalid temperature", Reason: controller.ReasonOutOfRange}, false
		}
		cmd.Value = v
	case controller.ActionSelectSchedule:
		i, err := strconv.Atoi(index)
		if err != nil {
			return cmd, ControlResult{Message: "invalid schedule index", Reason: controller.ReasonInvalidIndex}, false
		}
		cmd.Index = i
	default:
		return cmd, ControlResult{Message: fmt.Sprintf("unknown action %q", action), Reason: controller.ReasonUnknownCommand}, false
	}
	return cmd, ControlResult{}, true
}

// submit runs cmd and maps the outcome to a result and HTTP status.
func (s *Server) submit(ctx context.Context, cmd controller.Command) (ControlResult, int) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	err := s.kiln.Submit(ctx, cmd)
	switch {
	case err == nil:
		return ControlResult{Success: true, Message: s.describe(cmd)}, http.StatusOK
	case controller.ReasonOf(err) != "":
		return ControlResult{Message: err.Error(), Reason: controller.ReasonOf(err)}, http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.log.Warn("%s: controller did not answer: %v", cmd.Action, err)
		return ControlResult{Message: "controller busy", Reason: controller.ReasonUnavailable}, http.StatusServiceUnavailable
	default:
		s.log.Error("%s: %v", cmd.Action, err)
		return ControlResult{Message: err.Error(), Reason: controller.ReasonUnavailable}, http.StatusInternalServerError
	}
}

func (s *Server) describe(cmd controller.Command) string {
	switch cmd.Action {
	case controller.ActionStart:
		return "Heating started"
	case controller.ActionStop:
		return "Heating stopped"
	case controller.ActionEmergency:
		return "Emergency stop activated"
	case controller.ActionReset:
		return "Emergency stop cleared"
	case controller.ActionSetSetpoint:
		return fmt.Sprintf("Setpoint set to %.0f°C", cmd.Value)
	case controller.ActionSelectSchedule:
		presets := s.kiln.Presets()
		if cmd.Index >= 0 && cmd.Index < len(presets) {
			return fmt.Sprintf("Schedule %q started", presets[cmd.Index].Name)
		}
	}
	return "OK"
}
