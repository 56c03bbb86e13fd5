/*
Package clone runs one clone request end to end.

The Orchestrator walks a fixed state machine:

	Validating → Rendering → Extracting → Prompting → Generating → Sanitizing → Done

and moves to Failed(kind) from any state. Every failure is terminal and
classified with a types.ErrorKind; nothing is retried at this level and no
other provider is tried. Panics inside a stage are recovered and reported as
InternalError, so Clone always returns a CloneResult.

Render and generate are the only suspension points. Each passes through its
own admission gate (resilience.Gate) so a burst of requests queues briefly and
is then rejected instead of piling onto the upstreams.

Stage transitions are published to an optional StageObserver; the websocket
stream endpoint and the stage metrics are both fed from it.
*/
package clone
