// Package relay is a feed.Source over one event-relay websocket.
//
// Wire protocol (JSON arrays):
//
//	client -> relay   ["REQ", <sub-id>, <filter>]
//	client -> relay   ["CLOSE", <sub-id>]
//	relay  -> client  ["EVENT", <sub-id>, <event>]
//	relay  -> client  ["EOSE", <sub-id>]
//	relay  -> client  ["CLOSED", <sub-id>, <reason>]
//	relay  -> client  ["NOTICE", <message>]
//
// Events are routed by subscription id. Events for a subscription that has
// been stopped are dropped.
package relay
