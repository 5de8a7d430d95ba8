package shared

const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitConfigError    = 2
	ExitResolveFailed  = 3
	ExitFormatMismatch = 4
	ExitPathConflict   = 5
	ExitInstallFailed  = 6
	ExitHookFailed     = 7
)
