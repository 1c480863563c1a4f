package main

import "time"

const (
	storagePostgres = "postgres"
	storageMemory   = "memory"
)

type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"APP_NAME" envDefault:"billingd"`
	LogLevel    string `env:"LOG_LEVEL"`

	// StorageDriver selects postgres or memory. Memory mode also replaces
	// Redis with in-process locks and dedup.
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`

	// Local PIX image storage, used when S3_BUCKET is empty. An empty dir
	// keeps images as data URIs.
	FileDir     string `env:"FILE_STORAGE_DIR"`
	FileBaseURL string `env:"FILE_STORAGE_BASE_URL"`
	PixPrefix   string `env:"PIX_QR_PREFIX" envDefault:"pix"`

	QRCodeAttempts int           `env:"PIX_QR_ATTEMPTS" envDefault:"3"`
	QRCodeDelay    time.Duration `env:"PIX_QR_DELAY" envDefault:"1s"`

	GatewayGetRetries int `env:"ASAAS_GET_RETRIES" envDefault:"3"`
}
