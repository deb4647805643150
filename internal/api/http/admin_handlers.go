package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"membership-backend/internal/domain"
	"membership-backend/internal/service"
)

type memberRequest struct {
	Name          string           `json:"name" validate:"required,max=200"`
	StudentNumber string           `json:"studentNumber" validate:"required,max=64"`
	YearLevel     domain.YearLevel `json:"schoolYear" validate:"required,yearlevel"`
	MembershipFee *float64         `json:"membershipFee" validate:"omitempty,gte=0"`
}

func (m memberRequest) input() service.MemberInput {
	return service.MemberInput{
		Name:          m.Name,
		StudentNumber: m.StudentNumber,
		YearLevel:     m.YearLevel,
		MembershipFee: m.MembershipFee,
	}
}

func memberFilter(r *http.Request) domain.MemberFilter {
	q := r.URL.Query()
	return domain.MemberFilter{
		Search:    q.Get("search"),
		YearLevel: domain.YearLevel(q.Get("schoolYear")),
	}
}

func (h *Handlers) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := domain.RegistrationStatus(r.URL.Query().Get("status"))
	requests, err := h.admin.ListRequests(r.Context(), status)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, requests, nil)
}

func (h *Handlers) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	member, err := h.admin.Approve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, service.ErrPartialApproval) && member != nil {
			h.errorJSON(w, r, statusFor(err), service.Message(err), envelope{"member": member})
			return
		}
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, member, nil)
}

func (h *Handlers) DenyRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.Deny(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeMessage(w, http.StatusOK, "Request denied")
}

func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.admin.ListMembers(r.Context(), memberFilter(r))
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, members, nil)
}

func (h *Handlers) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	member, err := h.admin.RegisterMember(r.Context(), req.input())
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, member, nil)
}

func (h *Handlers) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	member, err := h.admin.UpdateMember(r.Context(), domain.ID(mux.Vars(r)["id"]), req.input())
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, member, nil)
}

func (h *Handlers) DeleteMember(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteMember(r.Context(), domain.ID(mux.Vars(r)["id"])); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeMessage(w, http.StatusOK, "Member deleted")
}

func (h *Handlers) ClearMembers(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteAllMembers(r.Context()); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeMessage(w, http.StatusOK, "All members deleted")
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context(), memberFilter(r))
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats, nil)
}

func (h *Handlers) ExportMembers(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	filename, err := h.admin.ExportCSV(r.Context(), memberFilter(r), &buf)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// ImportMembers accepts either a multipart upload in the "file" field or a
// raw text/csv body.
func (h *Handlers) ImportMembers(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+(1<<20))

	var src io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			h.errorJSON(w, r, http.StatusBadRequest, fmt.Sprintf("Failed to load CSV file: %v", err), nil)
			return
		}
		defer r.MultipartForm.RemoveAll()
		file, _, err := r.FormFile("file")
		if err != nil {
			h.errorJSON(w, r, http.StatusBadRequest, "Please select a CSV file", nil)
			return
		}
		defer file.Close()
		src = file
	}

	res, err := h.admin.ImportCSV(r.Context(), src)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res, nil)
}

func (h *Handlers) RecycledPool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.admin.Pool(r.Context())
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{"recycled": pool}, nil)
}

func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	repair, _ := strconv.ParseBool(r.URL.Query().Get("repair"))
	report, err := h.admin.Reconcile(r.Context(), repair)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report, nil)
}
