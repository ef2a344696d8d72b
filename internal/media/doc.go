// Package media adapts the WebRTC stack to the two signaling lifecycle
// hooks the call-flow orchestrator consumes: initialize on session creation
// and teardown on termination. Media transport itself is out of scope.
package media
