// Package mqtt mirrors loop state transitions to an MQTT broker.
//
// Every event is published as JSON to {topic}/{kind}. Face events are also
// published to {topic} as {"face_detected", "timestamp"} for consumers of the
// plain face detection feed.
package mqtt
