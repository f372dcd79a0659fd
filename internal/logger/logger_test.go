// Copyright 2021 TiFS Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const (
	textTracePattern   = `severity=TRACE .*traceExample`
	textDebugPattern   = `severity=DEBUG .*debugExample`
	textInfoPattern    = `severity=INFO .*infoExample`
	textWarningPattern = `severity=WARNING .*warningExample`
	textErrorPattern   = `severity=ERROR .*errorExample`
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

// redirectLogsToGivenBuffer points the default logger at buf with the given
// severity.
func redirectLogsToGivenBuffer(buf *bytes.Buffer, level string) {
	var programLevel = new(slog.LevelVar)
	defaultLogger = slog.New(
		defaultLoggerFactory.createJsonOrTextHandler(buf, programLevel),
	)
	setLoggingLevel(level, programLevel)
}

// fetchLogOutputForSpecifiedSeverityLevel runs each log call against a
// buffer-backed logger at the configured severity and returns the output of
// each call.
func fetchLogOutputForSpecifiedSeverityLevel(level string, functions []func()) []string {
	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, level)

	var output []string
	for _, f := range functions {
		f()
		output = append(output, buf.String())
		buf.Reset()
	}
	return output
}

func getTestLoggingFunctions() []func() {
	return []func(){
		func() { Tracef("www.traceExample.com") },
		func() { Debugf("www.debugExample.com") },
		func() { Infof("www.infoExample.com") },
		func() { Warnf("www.warningExample.com") },
		func() { Errorf("www.errorExample.com") },
	}
}

func validateOutput(t *testing.T, expected []string, output []string) {
	for i := range output {
		if expected[i] == "" {
			assert.Equal(t, expected[i], output[i])
		} else {
			expectedRegexp := regexp.MustCompile(expected[i])
			assert.True(t, expectedRegexp.MatchString(output[i]), "output %q", output[i])
		}
	}
}

func validateLogOutputAtSpecifiedFormatAndSeverity(t *testing.T, format, level string, expectedOutput []string) {
	defaultLoggerFactory.format = format

	output := fetchLogOutputForSpecifiedSeverityLevel(level, getTestLoggingFunctions())

	validateOutput(t, expectedOutput, output)
}

func (t *LoggerTest) TestTextFormatLogs_LogLevelOFF() {
	expected := []string{"", "", "", "", ""}

	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "text", OFF, expected)
}

func (t *LoggerTest) TestTextFormatLogs_LogLevelERROR() {
	expected := []string{"", "", "", "", textErrorPattern}

	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "text", ERROR, expected)
}

func (t *LoggerTest) TestTextFormatLogs_LogLevelWARNING() {
	expected := []string{"", "", "", textWarningPattern, textErrorPattern}

	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "text", WARNING, expected)
}

func (t *LoggerTest) TestTextFormatLogs_LogLevelINFO() {
	expected := []string{"", "", textInfoPattern, textWarningPattern, textErrorPattern}

	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "text", INFO, expected)
}

func (t *LoggerTest) TestTextFormatLogs_LogLevelDEBUG() {
	expected := []string{"", textDebugPattern, textInfoPattern, textWarningPattern, textErrorPattern}

	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "text", DEBUG, expected)
}

func (t *LoggerTest) TestTextFormatLogs_LogLevelTRACE() {
	expected := []string{textTracePattern, textDebugPattern, textInfoPattern, textWarningPattern, textErrorPattern}

	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "text", TRACE, expected)
}

func (t *LoggerTest) TestJSONFormatLogs_LogLevelERROR() {
	expected := []string{"", "", "", "", `"severity":"ERROR"`}

	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "json", ERROR, expected)
}

func (t *LoggerTest) TestJSONFormatLogs_LogLevelTRACE() {
	expected := []string{
		`"severity":"TRACE"`,
		`"severity":"DEBUG"`,
		`"severity":"INFO"`,
		`"severity":"WARNING"`,
		`"severity":"ERROR"`,
	}

	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "json", TRACE, expected)
}

func (t *LoggerTest) TestSetLoggingLevel() {
	testData := []struct {
		inputLevel           string
		expectedProgramLevel slog.Level
	}{
		{TRACE, LevelTrace},
		{DEBUG, LevelDebug},
		{WARNING, LevelWarn},
		{ERROR, LevelError},
		{OFF, LevelOff},
		{INFO, LevelInfo},
	}

	for _, test := range testData {
		programLevel := new(slog.LevelVar)
		setLoggingLevel(test.inputLevel, programLevel)
		assert.Equal(t.T(), test.expectedProgramLevel, programLevel.Level())
	}
}

func (t *LoggerTest) TestSeverityName() {
	assert.Equal(t.T(), TRACE, severityName(LevelTrace))
	assert.Equal(t.T(), DEBUG, severityName(LevelDebug))
	assert.Equal(t.T(), INFO, severityName(LevelInfo))
	assert.Equal(t.T(), WARNING, severityName(LevelWarn))
	assert.Equal(t.T(), ERROR, severityName(LevelError))
}
