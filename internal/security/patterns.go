package security

import (
	"regexp"

	"github.com/t77yq/nitrite-automation/internal/model"
)

// Pattern is one compiled rule of the scanner
type Pattern struct {
	Expr        *regexp.Regexp
	Description string
	Level       model.RiskLevel
}

// PatternSpec is the uncompiled form used by configuration
type PatternSpec struct {
	Pattern     string `mapstructure:"pattern" json:"pattern"`
	Description string `mapstructure:"description" json:"description"`
}

func compile(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)` + expr)
}

// advisoryPatterns flag system-changing but routine maintenance commands.
var advisoryPatterns = []Pattern{
	{compile(`\bStop-Service\b`), "Stopping a Windows service", model.RiskMedium},
	{compile(`\bSet-Service\b.*-StartupType\s+Disabled\b`), "Disabling a Windows service", model.RiskMedium},
	{compile(`\bSet-ItemProperty\b.*\bHKLM:`), "Writing machine-wide registry values", model.RiskMedium},
	{compile(`\bnetsh\s+advfirewall\s+reset\b`), "Resetting firewall configuration", model.RiskMedium},
	{compile(`\b(Restart-Computer|Stop-Computer)\b|\bshutdown(\.exe)?\s+/[rs]\b`), "Restarting or shutting down the machine", model.RiskMedium},
	{compile(`\bRegister-ScheduledTask\b|\bschtasks(\.exe)?\s+/create\b`), "Registering an OS scheduled task", model.RiskMedium},
}

// dangerousPatterns escalate to HIGH. Order is the report order.
var dangerousPatterns = []Pattern{
	{compile(`\bRemove-Item\b.*(-Recurse\b.*-Force\b|-Force\b.*-Recurse\b)`), "Recursive deletion with -Force", model.RiskHigh},
	{compile(`\brm\s+-(rf|fr)\b`), "Recursive deletion (rm -rf)", model.RiskHigh},
	{compile(`\b(rd|rmdir)\s+/s\b`), "Recursive directory deletion", model.RiskHigh},
	{compile(`\bFormat-Volume\b`), "Disk formatting", model.RiskHigh},
	{compile(`\b(Invoke-WebRequest|iwr|Invoke-RestMethod|irm)\b.*\|\s*(Invoke-Expression|iex)\b`), "Download and execute", model.RiskHigh},
	{compile(`\bSet-MpPreference\b.*-DisableRealtimeMonitoring\b`), "Disabling real-time antivirus protection", model.RiskHigh},
	{compile(`\bAdd-MpPreference\b.*-Exclusion(Path|Process|Extension)\b`), "Adding an antivirus exclusion", model.RiskHigh},
	{compile(`\b(Invoke-Expression|iex)\s*[($]`), "Dynamic code execution", model.RiskHigh},
	{compile(`\bStart-Process\b.*powershell.*-WindowStyle\s+Hidden\b`), "Hidden PowerShell process", model.RiskHigh},
	{compile(`\breg(\.exe)?\s+delete\b`), "Registry key deletion", model.RiskHigh},
	{compile(`\bSet-ExecutionPolicy\s+(-ExecutionPolicy\s+)?(Bypass|Unrestricted)\b`), "Execution policy bypass", model.RiskHigh},
	{compile(`\bDisable-WindowsOptionalFeature\b`), "Disabling a Windows feature", model.RiskHigh},
	{compile(`\bnet\s+user\b.*\s/add\b`), "Adding a user account", model.RiskHigh},
	{compile(`\bnet\s+localgroup\s+administrators\b.*\s/add\b`), "Adding a member to the administrators group", model.RiskHigh},
	{compile(`\bbcdedit\b`), "Boot configuration edit", model.RiskHigh},
	{compile(`\bwevtutil(\.exe)?\s+(cl|clear-log)\b|\bClear-EventLog\b`), "Clearing security event logs", model.RiskHigh},
}

// forbiddenCommands are absolute denials. Description doubles as the command
// name shown to the author.
var forbiddenCommands = []Pattern{
	{compile(`\bformat(\.com)?\s+[a-z]:`), "format", model.RiskCritical},
	{compile(`\bfdisk\b`), "fdisk", model.RiskCritical},
	{compile(`\bdiskpart\b`), "diskpart", model.RiskCritical},
	{compile(`\bClear-Disk\b`), "Clear-Disk", model.RiskCritical},
	{compile(`\bcipher(\.exe)?\s+/w\b`), "cipher /w", model.RiskCritical},
	{compile(`\btakeown\b`), "takeown", model.RiskCritical},
	{compile(`\bicacls\b.*\s/reset\b`), "icacls /reset", model.RiskCritical},
}

// DangerousPatterns returns a copy of the built-in HIGH tier
func DangerousPatterns() []Pattern {
	return append([]Pattern(nil), dangerousPatterns...)
}

// ForbiddenCommands returns a copy of the built-in CRITICAL tier
func ForbiddenCommands() []Pattern {
	return append([]Pattern(nil), forbiddenCommands...)
}
