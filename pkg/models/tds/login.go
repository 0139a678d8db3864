package tds

// Login7 is the LOGIN7 record sent after prelogin. All integers are
// little-endian on the wire; strings are UCS-2LE and addressed through an
// offset/length directory in the fixed header.
// ref: https://learn.microsoft.com/en-us/openspecs/windows_protocols/ms-tds/773a62b6-ee89-4c02-9e5e-344882630aac
type Login7 struct {
	TDSVersion     uint32 `json:"tds_version" yaml:"tds_version"`
	PacketSize     uint32 `json:"packet_size" yaml:"packet_size"`
	ClientProgVer  uint32 `json:"client_prog_ver" yaml:"client_prog_ver"`
	ClientPID      uint32 `json:"client_pid" yaml:"client_pid"`
	ConnectionID   uint32 `json:"connection_id" yaml:"connection_id"`
	OptionFlags1   byte   `json:"option_flags1" yaml:"option_flags1"`
	OptionFlags2   byte   `json:"option_flags2" yaml:"option_flags2"`
	TypeFlags      byte   `json:"type_flags" yaml:"type_flags"`
	OptionFlags3   byte   `json:"option_flags3" yaml:"option_flags3"`
	ClientTimeZone int32  `json:"client_time_zone" yaml:"client_time_zone"`
	ClientLCID     uint32 `json:"client_lcid" yaml:"client_lcid"`

	HostName       string  `json:"host_name" yaml:"host_name"`
	UserName       string  `json:"user_name" yaml:"user_name"`
	Password       string  `json:"-" yaml:"-"`
	AppName        string  `json:"app_name" yaml:"app_name"`
	ServerName     string  `json:"server_name" yaml:"server_name"`
	CtlIntName     string  `json:"ctl_int_name" yaml:"ctl_int_name"`
	Language       string  `json:"language" yaml:"language"`
	Database       string  `json:"database" yaml:"database"`
	ClientID       [6]byte `json:"client_id" yaml:"client_id,flow"`
	SSPI           []byte  `json:"sspi,omitempty" yaml:"sspi,omitempty,flow"`
	AtchDBFile     string  `json:"atch_db_file" yaml:"atch_db_file"`
	ChangePassword string  `json:"-" yaml:"-"`
}

// LOGIN7 OptionFlags2 bits used by this driver.
const (
	LoginFlagODBC        byte = 0x02
	LoginFlagIntSecurity byte = 0x80
)
