package http

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/http.go -package=mocks . IClient
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam describes a single request.
//
// Body may be nil, an io.Reader, a []byte, a string or any value that is
// marshalled as JSON. Response may be nil, a *[]byte receiving the raw body,
// or a pointer that the body is unmarshalled into as JSON.
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	Timeout time.Duration
}
