package types

// Client -> Server
// join:
//   roomId: string
//   userId: string
//
// test-results:
//   passed: number
//   total: number
//
// get-players: {}
//
// start-battle: {}
//
// complete-battle:
//   completionTime: number // optional, seconds
//
// cancel-battle: {}
//
// watch-rooms:
//   roomIds: string[]
//
// unwatch-rooms: {}

// Server -> Client
// players-list:
//   players: [{ userId, testsPassed, totalTests, joinedAt, isConnected }]
//
// test-results-update:
//   userId: string
//   passed: number
//   total: number
//
// battle-status:
//   status: "waiting" | "active" | "completed" | "cancelled"
//   isAdmin: boolean // relative to the recipient
//   battleId: string
//
// battle-started:
//   battleId: string
//   startedAt: timestamp
//
// battle-completed:
//   battleId: string
//   results: [{ userId, placement, testsPassed, totalTests }]
//
// room-statuses: // initial reply to watch-rooms
//   rooms: { [roomId]: status snapshot }
//
// room-status-update:
//   roomId: string
//   status snapshot fields, flattened
//   change: "player-joined" | "player-left" | "battle-created" |
//           "battle-started" | "battle-completed" | "battle-cancelled"
//
// unwatched:
//   message: string
//
// error:
//   message: string
