// Package state bridges telebot updates to a scene.Stage: it decodes
// updates, routes replies through the outbound dispatcher and provides the
// middleware and handlers that enter and leave scenes.
package state
