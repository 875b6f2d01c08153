// Package httpauth exposes a client that negotiates bearer tokens and
// refreshes expired access tokens transparently.
package httpauth

import (
	"github.com/adamwoolhether/httpauth/client"
	"github.com/adamwoolhether/httpauth/client/bearer"
	"github.com/adamwoolhether/httpauth/client/refresh"
)

// NewClient instantiates a new *client.Client with the provided options.
// Token refresh is the outermost stage of the pipeline, followed by bearer
// token negotiation; interceptors passed in opts run inside both.
// If not specified, the default http.Client and http.Transport are used.
func NewClient(opts ...client.Option) (*client.Client, error) {
	optFns := make([]client.Option, 0, len(opts)+1)
	optFns = append(optFns, client.WithInterceptors(refresh.Interceptor, bearer.Interceptor))
	optFns = append(optFns, opts...)

	return client.Build(optFns...)
}
