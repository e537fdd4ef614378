package battledto

// PlayerHeader carries the caller identity on every mutating request.
const PlayerHeader = "X-Player-Id"

type InitializeRequest struct {
	GameID     string `json:"game_id,omitempty"`
	Commitment string `json:"commitment"`
}

type JoinRequest struct {
	Commitment string `json:"commitment"`
}

// FireRequest fields are pointers so an omitted coordinate is told apart
// from 0.
type FireRequest struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

func NewFireRequest(x, y int) FireRequest { return FireRequest{X: &x, Y: &y} }

// RevealShotRequest.Hit is required; a missing answer must not read as a miss.
type RevealShotRequest struct {
	Hit *bool `json:"hit"`
}

func NewRevealShotRequest(hit bool) RevealShotRequest { return RevealShotRequest{Hit: &hit} }

type RevealBoardRequest struct {
	Board string `json:"board"`
	Salt  string `json:"salt"`
}
