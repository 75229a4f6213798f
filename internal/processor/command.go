package processor

import (
	"fmt"
	"strings"

	"github.com/jdwit/ocr-trigger/internal/config"
)

// Command is an OCR engine invocation. It is executed as an argument vector,
// never through a shell.
type Command struct {
	Name string
	Args []string
}

// StorageURI formats the object location passed to the OCR engine. Bucket and
// name are interpolated as is, without escaping or validation.
func StorageURI(bucket, name string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, name)
}

// BuildCommand returns the invocation for a single object:
//
//	java -jar target/functions-ocr-process-image.jar gs://<bucket>/<name>
func BuildCommand(cfg config.Config, bucket, name string) Command {
	return Command{
		Name: cfg.Java,
		Args: []string{"-jar", cfg.Jar, StorageURI(bucket, name)},
	}
}

// String renders the command line the way it would be typed in a shell.
// Arguments are not quoted.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}
