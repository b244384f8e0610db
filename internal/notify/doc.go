// Package notify fans messages out to users over MQTT and push.
//
// A broadcast stores one message, then per recipient: a notification
// row, an MQTT publish into the recipient's topic namespace, and a push
// send. Recipients are isolated from each other; a failed delivery is
// logged and recorded against that recipient only, and the loop keeps
// going.
package notify
