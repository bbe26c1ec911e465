/*
Package ws streams command execution over WebSocket.

A client connects to GET /api/sessions/:name/stream for an existing session
and exchanges JSON messages:

	-> {"type":"exec","command":"make test","timeout":"5m"}
	<- {"type":"output","stream":"stdout","data":"ok\n"}
	<- {"type":"result","result":{...},"dropped":0}

	-> {"type":"signal","signal":"INT"}
	<- {"type":"signal","signal":"SIGINT","delivered":true}

One command runs per connection at a time. Output chunks that do not fit
the send buffer are dropped and counted in the result frame; the result
itself always carries the complete output. Closing the connection
interrupts the running command.
*/
package ws
