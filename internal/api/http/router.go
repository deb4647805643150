package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter registers every route under its security name. Route names are
// looked up in config.EndpointSecurityConfig by the authenticate middleware.
func NewRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.accessLog, h.authenticate)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/signup", h.Signup).Methods(http.MethodPost).Name("auth.signup")
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost).Name("auth.login")
	api.HandleFunc("/auth/admin/login", h.AdminLogin).Methods(http.MethodPost).Name("auth.admin.login")
	api.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost).Name("auth.logout")

	api.HandleFunc("/registration", h.GetRegistration).Methods(http.MethodGet).Name("registration.get")
	api.HandleFunc("/registration", h.SubmitRegistration).Methods(http.MethodPost).Name("registration.submit")
	api.HandleFunc("/registration", h.DiscardRegistration).Methods(http.MethodDelete).Name("registration.discard")
	api.HandleFunc("/registration/proof", h.UploadProof).Methods(http.MethodPost).Name("registration.proof")
	api.HandleFunc("/registration/events", h.RegistrationEvents).Methods(http.MethodGet).Name("registration.events")
	api.HandleFunc("/registration/notifications/{id}/dismiss", h.DismissNotification).
		Methods(http.MethodPost).Name("registration.dismiss")

	api.HandleFunc("/admin/requests", h.ListRequests).Methods(http.MethodGet).Name("admin.requests.list")
	api.HandleFunc("/admin/requests/{id}/approve", h.ApproveRequest).Methods(http.MethodPost).Name("admin.requests.approve")
	api.HandleFunc("/admin/requests/{id}/deny", h.DenyRequest).Methods(http.MethodPost).Name("admin.requests.deny")

	api.HandleFunc("/admin/members/export", h.ExportMembers).Methods(http.MethodGet).Name("admin.members.export")
	api.HandleFunc("/admin/members/import", h.ImportMembers).Methods(http.MethodPost).Name("admin.members.import")
	api.HandleFunc("/admin/members", h.ListMembers).Methods(http.MethodGet).Name("admin.members.list")
	api.HandleFunc("/admin/members", h.CreateMember).Methods(http.MethodPost).Name("admin.members.create")
	api.HandleFunc("/admin/members", h.ClearMembers).Methods(http.MethodDelete).Name("admin.members.clear")
	api.HandleFunc("/admin/members/{id}", h.UpdateMember).Methods(http.MethodPut).Name("admin.members.update")
	api.HandleFunc("/admin/members/{id}", h.DeleteMember).Methods(http.MethodDelete).Name("admin.members.delete")

	api.HandleFunc("/admin/stats", h.Stats).Methods(http.MethodGet).Name("admin.stats")
	api.HandleFunc("/admin/pool", h.RecycledPool).Methods(http.MethodGet).Name("admin.pool")
	api.HandleFunc("/admin/reconcile", h.Reconcile).Methods(http.MethodPost).Name("admin.reconcile")

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet).Name("health")
	if h.files != nil {
		r.HandleFunc("/files/{key:.+}", h.DownloadFile).Methods(http.MethodGet, http.MethodHead).Name("files.get")
	}
	if h.metricsHandler != nil {
		r.Handle(h.metricsPath, h.metricsHandler).Methods(http.MethodGet).Name("metrics")
	}
	return r
}
