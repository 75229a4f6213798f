package types

import "net/http"

const (
	BodyCompleted = "OCR extraction completed"
	BodyFailed    = "OCR extraction failed"
)

type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

func SuccessResponse() Response {
	return Response{StatusCode: http.StatusOK, Body: BodyCompleted}
}

func FailureResponse() Response {
	return Response{StatusCode: http.StatusInternalServerError, Body: BodyFailed}
}
