package config

import (
	"encoding/json"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/fleetline/voice-dispatch-api/models"
)

// Config holds the project config values
type Config struct {
	Url                 string
	DatabaseName        string
	BaseUrl             string
	Port                string
	RetellAPIKey        string
	RetellWebhookSecret string
	RetellFromNumber    string
	OpenAIAPIKey        string
	SendgridAPIKey      string
	OpsAlertEmail       string
	DispatchPhoneNumber string
}

// New sets up all config related services
func New() *Config {

	//setup zap logger and replace default logger
	logger, err := setLogger(os.Getenv("APP_ENV"))
	if err != nil {
		logger = zap.NewExample()
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	return &Config{
		Url:                 os.Getenv("DB_URI"),
		DatabaseName:        os.Getenv("DB_NAME"),
		BaseUrl:             os.Getenv("BASE_URL"),
		Port:                os.Getenv("PORT"),
		RetellAPIKey:        os.Getenv("RETELL_API_KEY"),
		RetellWebhookSecret: os.Getenv("RETELL_WEBHOOK_SECRET"),
		RetellFromNumber:    os.Getenv("RETELL_FROM_NUMBER"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		SendgridAPIKey:      os.Getenv("SENDGRID_API_KEY"),
		OpsAlertEmail:       os.Getenv("OPS_ALERT_EMAIL"),
		DispatchPhoneNumber: os.Getenv("DISPATCH_PHONE_NUMBER"),
	}

}

// setLogger builds the zap logger for the given environment. Anything
// other than development/production gets the example logger, which is
// deterministic and handy for local runs and tests.
func setLogger(env string) (*zap.Logger, error) {
	switch env {
	case "development":
		return zap.NewDevelopment()
	case "production":
		return zap.NewProduction()
	default:
		return zap.NewExample(), nil
	}
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().With(err).Error(message)
	w.WriteHeader(httpStatusCode)
	b, _ := json.Marshal(models.ErrorMessageResponse{
		Response: models.MessageError{Message: message, Error: err.Error()},
	})
	w.Write(b)
}
