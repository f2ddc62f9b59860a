package conf

import (
	"testing"

	"github.com/cywhale/woa23/pkg/bytesize"
	"github.com/cywhale/woa23/pkg/ecosystem"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_WOA23Record(t *testing.T) {
	eco, err := Default()
	require.NoError(t, err)
	require.Equal(t, 1, eco.Len())

	app, err := eco.Find(AppName)
	require.NoError(t, err)

	assert.Equal(t, "woa23", app.Name)
	assert.Equal(t, "./conf/start_app.sh", app.Script)
	assert.Empty(t, app.Args)
	assert.Equal(t, bytesize.ByteSize(4*1024*1024*1024), app.MaxMemoryRestart)
	assert.True(t, app.AutoRestartEnabled())
	assert.False(t, app.Watch)
	assert.True(t, app.MergeLogs)
	assert.True(t, app.AppendEnvToName)

	logging := app.Logging()
	assert.Equal(t, "tmp/woa23.outerr.log", logging.Combined)
	assert.Equal(t, "tmp/woa23.log", logging.Stdout)
	assert.Equal(t, "tmp/woa23_err.log", logging.Stderr)
	assert.Equal(t, "YYYY-MM-DD HH:mm Z", logging.DateFormat)

	assert.Equal(t,
		"ps -ef | grep -w 'woa23_app' | grep -v grep | awk '{print $2}' | xargs -r kill -9",
		app.PreStop)
}

func TestDefault_RoundTrip(t *testing.T) {
	eco, err := Default()
	require.NoError(t, err)

	for _, format := range []ecosystem.Format{ecosystem.FormatYAML, ecosystem.FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			data, err := eco.Marshal(format)
			require.NoError(t, err)

			again, err := ecosystem.Parse(data, format)
			require.NoError(t, err)
			assert.Equal(t, eco.Apps(), again.Apps())
		})
	}
}

func TestEcosystemYAML_IsCopy(t *testing.T) {
	data := EcosystemYAML()
	data[0] = '#'
	assert.NotEqual(t, data[0], EcosystemYAML()[0])
}
