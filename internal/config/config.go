package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

const (
	DefaultJava    = "java"
	DefaultJar     = "target/functions-ocr-process-image.jar"
	DefaultTargets = "stdout"
)

type Config struct {
	Java     string // executable used to launch the OCR engine
	Jar      string // path of the OCR engine jar
	Targets  string // comma separated list of result targets
	Endpoint string // custom S3 compatible endpoint, e.g. https://storage.googleapis.com
}

// Load reads the configuration from the environment. An optional .env file
// (or .env.<APP_ENV>) is loaded first; variables already set take precedence.
func Load() Config {
	loadDotEnv(os.Getenv("APP_ENV"))

	return Config{
		Java:     getenv("OCR_JAVA", DefaultJava),
		Jar:      getenv("OCR_JAR", DefaultJar),
		Targets:  getenv("TARGETS", DefaultTargets),
		Endpoint: os.Getenv("AWS_ENDPOINT"),
	}
}

func loadDotEnv(appEnv string) {
	if appEnv != "" {
		fname := ".env." + appEnv
		if err := godotenv.Load(fname); err == nil {
			log.Printf("loaded %s", fname)
			return
		}
	}
	if err := godotenv.Load(); err == nil {
		log.Println("loaded .env")
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
