package cmd

import (
	"net"
	"testing"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrictBool_UnmarshalText(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		wantErrMsg string
		in         []byte
		want       strictBool
	}{{
		name:       "true",
		wantErrMsg: "",
		in:         []byte("1"),
		want:       true,
	}, {
		name:       "false",
		wantErrMsg: "",
		in:         []byte("0"),
		want:       false,
	}, {
		name:       "true_text",
		wantErrMsg: `invalid value "true", supported: "0", "1"`,
		in:         []byte("true"),
		want:       false,
	}, {
		name:       "empty",
		wantErrMsg: `invalid value "", supported: "0", "1"`,
		in:         []byte{},
		want:       false,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var got strictBool
			err := got.UnmarshalText(tc.in)
			testutil.AssertErrorMsg(t, tc.wantErrMsg, err)

			assert.Equal(t, tc.want, got)
		})
	}
}

// newTestEnvironment returns a valid environment for tests.
func newTestEnvironment() (envs *environment) {
	return &environment{
		ConfPath:        "./config.yaml",
		FilterCachePath: "./filters/",
		LogFormat:       "text",
		SentryDSN:       "stderr",
		UserFilterPath:  "./user_filter.txt",
		WhitelistPath:   "./whitelist.json",
		ListenAddr:      net.IP{127, 0, 0, 1},
		ListenPort:      8181,
	}
}

func TestEnvironment_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, newTestEnvironment().Validate())

	testCases := []struct {
		modify     func(envs *environment)
		name       string
		wantErrMsg string
	}{{
		modify:     func(envs *environment) { envs.ConfPath = "" },
		name:       "no_config_path",
		wantErrMsg: "CONFIG_PATH",
	}, {
		modify: func(envs *environment) {
			envs.RuleStatURL = &urlutil.URL{Scheme: "ftp", Host: "stats.example"}
		},
		name:       "bad_rulestat_url",
		wantErrMsg: "RULESTAT_URL: not a valid http(s) url",
	}, {
		modify:     func(envs *environment) { envs.ListenAddr = nil },
		name:       "no_listen_addr",
		wantErrMsg: "LISTEN_ADDR: no value",
	}, {
		modify:     func(envs *environment) { envs.LogFormat = "xml" },
		name:       "bad_log_format",
		wantErrMsg: "LOG_FORMAT",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			envs := newTestEnvironment()
			tc.modify(envs)

			err := envs.Validate()
			require.Error(t, err)

			assert.Contains(t, err.Error(), tc.wantErrMsg)
		})
	}
}

func TestEnvironment_debugConf(t *testing.T) {
	t.Parallel()

	conf := newTestEnvironment().debugConf(slogutil.NewDiscardLogger())
	assert.Equal(t, "127.0.0.1:8181", conf.APIAddr)
	assert.Equal(t, conf.APIAddr, conf.PprofAddr)
	assert.Equal(t, conf.APIAddr, conf.PrometheusAddr)
}
