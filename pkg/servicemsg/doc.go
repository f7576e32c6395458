// Package servicemsg extracts service messages from free-form build output and checks that
// their lifecycle events nest correctly per flow.
//
// # Service Message Format
//
// A service message is a bracketed frame embedded anywhere in a line of text:
//
//	##teamcity[name key='value' key2='value2']
//	##teamcity[name 'single value']
//
// Inside a value the following escapes apply:
//
//	|'  -> '
//	||  -> |
//	|n  -> line feed
//	|r  -> carriage return
//	|[  -> [
//	|]  -> ]
//	|0xNNNN -> unicode code point NNNN (hex)
//
// An escaped closing bracket (|]) does not terminate the frame. A line may carry several frames
// and arbitrary text before, between and after them.
//
// # Flows
//
// When a build tool runs work on several threads, each thread tags its frames with a flowId
// attribute. The FlowDecoder groups extracted frames by that attribute so interleaved output can
// be de-interleaved again. ValidateFlows then checks, per flow, that every "...Finished" frame
// closes an open "...Started" frame with the same kind and name, and that nothing is left open.
package servicemsg
