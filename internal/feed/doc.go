// Package feed connects the MQTT state feed to the automation engine.
//
// The layout bridge publishes under the configured prefix:
//
//	{prefix}/clock               {"hour":8,"minute":30,"running":true}
//	{prefix}/state/{kind}/{id}   {"state":true,"V":40,...}
//	{prefix}/bridge/status       {"status":"online|offline|shutdown","reason":"..."}
//
// Messages are decoded and delivered to a Sink (normally *automation.Engine)
// in the order paho delivers them. Bridge status and broker connection
// events drive the Sink's connection monitor: an announced shutdown
// suppresses the disconnect handler, anything else that ends the feed fires
// it once.
package feed
