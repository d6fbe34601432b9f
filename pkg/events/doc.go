// Package events is the gateway's observer surface.
//
// Components publish through the Emitter interface; observability sinks
// (logging, metrics, desktop notifications) subscribe to a Dispatcher built
// and injected by the caller. Emit is asynchronous with a bounded queue per
// subscriber; EmitSync delivers inline and is reserved for events that must
// be seen before the caller proceeds, such as budget-exceeded.
package events
