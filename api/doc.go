/*
Package api holds the HTTP contract of the insurance coordinator: server
configuration, request and response bodies, and the route paths shared by
the server in package httpserver and the client in package api/clients.

# Routes

	POST   /api/session/connect          connect the keyed wallet, resolve chain binding
	POST   /api/session/disconnect       drop the session
	GET    /api/session                  current session and binding
	GET    /api/identity                 identity record and role of the connected wallet
	POST   /api/registration             register the wallet as user or company
	GET    /api/registration             in-flight registration state
	DELETE /api/registration             abandon the in-flight registration
	POST   /api/policies                 validate, deploy and bind a policy
	GET    /api/policies?filter=...      list policy addresses (all, active, closed)
	GET    /api/policies/partition       policies grouped by status
	POST   /api/policies/expire          mark expired policies through the gateway
	GET    /api/policies/{address}       read every field of one policy
	POST   /api/policies/{address}/bind  retry the missing binding step(s)

# Errors

Every non-2xx response carries an ErrorResponse. Kind is the stable error
kind from interfaces.ErrorKind and Message is the user-facing text from
interfaces.UserMessage. A partially registered deployment additionally
carries the DeploymentOutcome so the caller can retry only the binding.
*/
package api
