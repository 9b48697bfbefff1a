/*
Package httpserver serves the insurance coordinator over HTTP.

A single Server owns one coordinator, which in turn owns one wallet session.
Requests are logged with the flashbots httplogger middleware and each
coordinator operation runs under the configured operation timeout.

# Status codes

	400  validation_error
	403  connection_rejected, issuer_not_registered
	404  unknown policy address, no registration in progress
	409  role_conflict, registration_in_progress
	412  not_connected, unsupported_network, incomplete_binding
	424  partial_registration_failure, insured_identity_not_found
	502  identity_creation_failed, deployment_failed, transaction_failure
	504  connection_timeout

Failed requests carry an api.ErrorResponse with the error kind and the
message meant for the wallet holder.

# Operational endpoints

	/livez     always 200 while the process runs
	/readyz    503 while draining
	/drain     mark not ready
	/undrain   mark ready again
	/debug/*   pprof, when enabled

Shutdown drains for DrainDuration before stopping the listeners.
*/
package httpserver
