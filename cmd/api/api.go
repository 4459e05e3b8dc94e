package api

import (
	"context"
	"log"
	"net/http"

	"github.com/careslot/careslot-server/config"
	"github.com/careslot/careslot-server/service/allocation"
	"github.com/careslot/careslot-server/service/booking"
	"github.com/careslot/careslot-server/service/credit"
	"github.com/careslot/careslot-server/service/notifications"
	"github.com/careslot/careslot-server/service/user"
	"github.com/careslot/careslot-server/service/ws"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
	cfg     config.Config
	server  *http.Server
}

func NewApiServer(address string, db *gorm.DB, cfg config.Config) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
		cfg:     cfg,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	wsHandler := ws.NewHandler()
	wsHandler.RegisterRoutes(router)

	notificationHandler := notifications.NewNotificationHandler(s.db)
	notificationHandler.RegisterRoutes(subrouter)

	mailer := notifications.NewMailer(s.cfg)

	userHandler := user.NewHandler(s.db)
	userHandler.RegisterRoutes(subrouter)

	coordinator := allocation.NewCoordinator(s.db, s.cfg)
	allocationHandler := allocation.NewHandler(coordinator, wsHandler.Hub())
	allocationHandler.RegisterRoutes(subrouter)

	bookingHandler := booking.NewHandler(s.db, wsHandler.Hub(), notificationHandler, mailer)
	bookingHandler.RegisterRoutes(subrouter)

	creditHandler := credit.NewHandler(s.db)
	creditHandler.RegisterRoutes(subrouter)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	s.server = &http.Server{
		Addr:    s.address,
		Handler: cors(router),
	}

	log.Println("Server running at", s.address)
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests before closing.
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
