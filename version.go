package vessel

const (
	Version       = "1.0.0"
	VersionPrefix = "vessel"
	VersionName   = "Vessel Framework"
)
