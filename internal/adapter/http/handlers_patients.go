package adapthttp

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"carelytics/internal/domain"
)

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	patients, err := s.patients.ViewAll(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, patients)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in domain.PatientInput
	if err := parseJSON(w, r, &in); err != nil {
		writeDecodeError(w, err)
		return
	}
	if _, err := s.patients.Create(r.Context(), in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Patient created")
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var u domain.PatientUpdate
	if err := parseJSON(w, r, &u); err != nil {
		writeDecodeError(w, err)
		return
	}
	if _, err := s.patients.Update(r.Context(), r.PathValue("id"), u); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Patient updated")
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.patients.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Patient deleted")
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		s.respond(w, r, http.StatusUnprocessableEntity, map[string]any{
			"detail": "validation failed",
			"errors": verr.Fields,
		})
	case errors.Is(err, domain.ErrPatientExists):
		writeDetail(w, http.StatusBadRequest, "Patient already exists")
	case errors.Is(err, domain.ErrPatientNotFound):
		writeDetail(w, http.StatusNotFound, "Patient not found")
	default:
		s.log.Error("patient store failure",
			zap.Error(err),
			zap.Bool("corrupt", errors.Is(err, domain.ErrStoreCorrupt)),
			zap.String("request_id", requestIDFromContext(r.Context())),
		)
		writeDetail(w, http.StatusInternalServerError, "internal server error")
	}
}
