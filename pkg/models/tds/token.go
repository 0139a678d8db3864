package tds

// LoginAck is the decoded LOGINACK token: the server accepted the login and
// reports the negotiated protocol dialect and its own version.
type LoginAck struct {
	Interface  byte    `json:"interface" yaml:"interface"`
	TDSVersion uint32  `json:"tds_version" yaml:"tds_version"`
	ProgName   string  `json:"prog_name" yaml:"prog_name"`
	ProgVer    [4]byte `json:"prog_ver" yaml:"prog_ver,flow"`
}

// ServerVersion renders the LOGINACK program version as major.minor.build.
func (a *LoginAck) ServerVersion() (major, minor uint8, build uint16) {
	return a.ProgVer[0], a.ProgVer[1], uint16(a.ProgVer[2])<<8 | uint16(a.ProgVer[3])
}

// EnvChange is a decoded ENVCHANGE token for the types handled during login
// (database, language, packet size). Values are already transcoded.
type EnvChange struct {
	Type     byte   `json:"type" yaml:"type"`
	NewValue string `json:"new_value" yaml:"new_value"`
	OldValue string `json:"old_value" yaml:"old_value"`
}

// Done is the decoded DONE token terminating a response.
type Done struct {
	Status   uint16 `json:"status" yaml:"status"`
	CurCmd   uint16 `json:"cur_cmd" yaml:"cur_cmd"`
	RowCount uint64 `json:"row_count" yaml:"row_count"`
}

// DONE status bits.
const (
	DoneMore  uint16 = 0x01
	DoneError uint16 = 0x02
)
