// Package realtime pushes device updates to browser sessions over WebSocket.
//
// All sessions share one global group. Each accepted reading produces a
// single ReceberAtualizacaoEquipamento event, delivered at most once to the
// sessions connected at that moment.
package realtime
