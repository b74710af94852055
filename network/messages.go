package network

const (
	MsgTypeHeartbeat = 1

	// Requests
	MsgTypeRegister       = 101
	MsgTypeStartGame      = 102
	MsgTypeSubmitGuess    = 103
	MsgTypeFinishGame     = 104
	MsgTypeClaimPrize     = 105
	MsgTypeGetProfile     = 201
	MsgTypeGetLeaderboard = 202
	MsgTypeGetState       = 203

	// Server push
	MsgTypeGameCompleted = 301
	MsgTypePeriodSettled = 302

	MsgTypeError = 400
)
