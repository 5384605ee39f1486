package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	chathandler "github.com/RamonAndres1967/tutor-backend/internal/handler/chat"
	speechhandler "github.com/RamonAndres1967/tutor-backend/internal/handler/speech"
	middlewarePkg "github.com/RamonAndres1967/tutor-backend/internal/middleware"
	speechsvc "github.com/RamonAndres1967/tutor-backend/internal/service/speech"
	"github.com/RamonAndres1967/tutor-backend/pkg/utils"
)

// NewRouter wires HTTP routes to the core services. transcriber may be
// nil when the STT collaborator is not configured; the endpoint then
// degrades to empty transcriptions.
func NewRouter(log *zap.Logger, tutorSvc chathandler.TutorService, transcriber speechsvc.Transcriber) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)
	r.Use(middlewarePkg.RequestLogger(log))

	chatHandler := chathandler.New(log, tutorSvc)
	speechHandler := speechhandler.New(log, transcriber)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)

		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
