// Package client provides the request pipeline underneath the
// authenticating HTTP client built on [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(10 * time.Second),
//		client.WithUserAgent("myapp/1.0"),
//	)
//
// # Making Requests
//
// Describe a request with [RequestProperties], then run it with
// [Client.Execute]. The result is always one of [OK], [Error] or [Failed]
// and must be closed:
//
//	u := client.URL("https", "api.example.com", "/v1/resource")
//	props, err := c.NewProperties(u, client.WithAuthorization(client.Bearer{Token: tok}))
//	status := c.Execute(ctx, props)
//	defer status.Close()
//
//	switch s := status.(type) {
//	case *client.OK:
//		// read s.Body
//	case *client.Error:
//		// s.Status, s.ProblemReport
//	case *client.Failed:
//		// s.Err
//	}
//
// A problem report (application/problem+json) carrying a status replaces
// the HTTP status of the response; OriginalStatus keeps the latter.
//
// # Redirects
//
// Redirects are followed by the client, hop by hop. On every hop the
// request's Modifier runs first; when the host changes, cookies and
// authorization are then removed, whatever the modifier returned.
// HTTPS to HTTP redirects are returned to the caller unless the policy is
// [AllowUnsafeDowngrade].
//
// # Interceptors
//
// [WithInterceptors] wraps the redirect loop with [Interceptor] values, the
// first one given being the outermost. The refresh and bearer packages
// provide interceptors for token negotiation.
package client
