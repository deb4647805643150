package http

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"membership-backend/internal/domain"
	"membership-backend/internal/service"
)

const defaultMembershipFee = 20.0

type registrationRequest struct {
	StudentName    string           `json:"studentName" validate:"required,max=200"`
	StudentNumber  string           `json:"studentNumber" validate:"required,max=64"`
	YearLevel      domain.YearLevel `json:"schoolYear" validate:"required,yearlevel"`
	MembershipFee  *float64         `json:"membershipFee" validate:"omitempty,gte=0"`
	ProofOfPayment string           `json:"proofOfPayment" validate:"required,max=512"`
}

func (h *Handlers) GetRegistration(w http.ResponseWriter, r *http.Request) {
	details, err := h.registration.Get(r.Context(), userID(r))
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, details, nil)
}

func (h *Handlers) SubmitRegistration(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	fee := req.MembershipFee
	if fee == nil {
		d := defaultMembershipFee
		fee = &d
	}

	submittedBy := ""
	if c, ok := claimsFrom(r.Context()); ok {
		submittedBy = c.Username
	}
	created, err := h.registration.Submit(r.Context(), userID(r), submittedBy, service.RegistrationInput{
		StudentName:    req.StudentName,
		StudentNumber:  req.StudentNumber,
		YearLevel:      req.YearLevel,
		MembershipFee:  fee,
		ProofOfPayment: req.ProofOfPayment,
	})
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created, nil)
}

func (h *Handlers) DiscardRegistration(w http.ResponseWriter, r *http.Request) {
	if err := h.registration.Discard(r.Context(), userID(r)); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeMessage(w, http.StatusOK, "Registration discarded")
}

// UploadProof accepts a multipart form with the image in the "file" field.
func (h *Handlers) UploadProof(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+(1<<20))
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.errorJSON(w, r, http.StatusRequestEntityTooLarge, "File is too large", nil)
			return
		}
		h.errorJSON(w, r, http.StatusBadRequest, "Please select a valid image file!", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorJSON(w, r, http.StatusBadRequest, "Please select a valid image file!", nil)
		return
	}
	defer file.Close()

	up, err := h.registration.UploadProof(r.Context(), userID(r), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, up, nil)
}

func (h *Handlers) DismissNotification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.sessions.Dismiss(userID(r), id) {
		h.errorJSON(w, r, http.StatusNotFound, "Notification not found", nil)
		return
	}
	h.writeMessage(w, http.StatusOK, "Notification dismissed")
}
