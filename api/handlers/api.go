package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/fleetline/voice-dispatch-api/api"
	"github.com/fleetline/voice-dispatch-api/api/scheduler"
	"github.com/fleetline/voice-dispatch-api/config"
	"github.com/fleetline/voice-dispatch-api/databases"
	"github.com/fleetline/voice-dispatch-api/extraction"
	"github.com/fleetline/voice-dispatch-api/models"
	"github.com/fleetline/voice-dispatch-api/retell"
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	Scheduler *scheduler.Scheduler

	dbHelper  databases.DatabaseHelper
	retell    retell.Client
	extractor extraction.Extractor
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	// setup go-guardian for middleware
	m := api.MiddlewareDB{DB: databases.NewUserDatabase(a.dbHelper)}
	m.SetupGoGuardian()

	r := mux.NewRouter()

	callDB := databases.NewCallDatabase(a.dbHelper)
	resultDB := databases.NewCallResultDatabase(a.dbHelper)
	eventDB := databases.NewWebhookEventDatabase(a.dbHelper)

	feed := NewLiveFeed()
	call := Call{DB: callDB, ResultDB: resultDB, Retell: a.retell, FromNumber: a.Config.RetellFromNumber}
	webhook := &Webhook{
		CallDB:    callDB,
		ResultDB:  resultDB,
		EventDB:   eventDB,
		Extractor: a.extractor,
		Feed:      feed,
		Secret:    a.Config.RetellWebhookSecret,
	}
	agent := Agent{Retell: a.retell}
	admin := Admin{UDB: databases.NewUserDatabase(a.dbHelper)}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	apiCreate.Handle("/auth/token", api.Middleware(http.HandlerFunc(m.CreateToken))).Methods("POST")
	apiCreate.Handle("/auth/logout", api.Middleware(http.HandlerFunc(api.RevokeToken))).Methods("DELETE")
	apiCreate.Handle("/auth/login", http.HandlerFunc(admin.AdminLoginHandler)).Methods("POST")

	// signature-verified, so no dashboard auth
	apiCreate.Handle("/webhooks/retell", http.HandlerFunc(webhook.RetellWebhookHandler)).Methods("POST")

	apiCreate.Handle("/calls", api.Middleware(http.HandlerFunc(call.TriggerCallHandler))).Methods("POST")
	apiCreate.Handle("/calls/web", api.Middleware(http.HandlerFunc(call.TriggerWebCallHandler))).Methods("POST")
	apiCreate.Handle("/calls", api.Middleware(http.HandlerFunc(call.CallHandler))).Methods("GET")
	apiCreate.Handle("/call/{call_id}", api.Middleware(http.HandlerFunc(call.CallByIDHandler))).Methods("GET")
	apiCreate.Handle("/call/{call_id}/reprocess", api.Middleware(http.HandlerFunc(webhook.ReprocessHandler))).Methods("POST")

	apiCreate.Handle("/agents/initial-prompt", api.Middleware(http.HandlerFunc(agent.InitialPromptHandler))).Methods("GET")
	apiCreate.Handle("/agents", api.Middleware(http.HandlerFunc(agent.CreateAgentHandler))).Methods("POST")
	apiCreate.Handle("/agents", api.Middleware(http.HandlerFunc(agent.ListAgentsHandler))).Methods("GET")
	apiCreate.Handle("/agents/{agent_id}", api.Middleware(http.HandlerFunc(agent.AgentByIDHandler))).Methods("GET")
	apiCreate.Handle("/agents/{agent_id}", api.Middleware(http.HandlerFunc(agent.UpdateAgentHandler))).Methods("PATCH")

	apiCreate.Handle("/live", http.HandlerFunc(feed.LiveHandler)).Methods("GET")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("voice-dispatch-api has connected to the database")

	a.retell = retell.NewClient(a.Config.RetellAPIKey)
	a.extractor = extraction.NewOpenAIExtractor(a.Config.OpenAIAPIKey)

	a.Scheduler = scheduler.NewScheduler(
		databases.NewCallDatabase(a.dbHelper),
		databases.NewCallResultDatabase(a.dbHelper),
		a.extractor,
		a.Config.OpsAlertEmail,
	)
	a.Scheduler.Start()

	// initialize api router
	a.initializeRoutes()
	return nil

}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
