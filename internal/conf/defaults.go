// defaults.go default values for configuration settings
package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for the configuration parameters.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "webcam-animator")
	viper.SetDefault("main.log.path", "logs/")
	viper.SetDefault("main.log.maxsize", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxage", 28)

	viper.SetDefault("database.sqlite.enabled", true)
	viper.SetDefault("database.sqlite.path", "webcams.db")
	viper.SetDefault("database.mysql.enabled", false)
	viper.SetDefault("database.mysql.username", "webcams")
	viper.SetDefault("database.mysql.password", "")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")
	viper.SetDefault("database.mysql.database", "webcams")

	viper.SetDefault("store.path", "objects/")
	viper.SetDefault("store.publicbaseurl", "")

	viper.SetDefault("capture.enabled", true)
	viper.SetDefault("capture.intervalseconds", 300)
	viper.SetDefault("capture.timeoutseconds", 30)
	viper.SetDefault("capture.concurrency", 8)
	viper.SetDefault("capture.daylightonly", true)

	viper.SetDefault("animation.enabled", true)
	viper.SetDefault("animation.framerate", 10)
	viper.SetDefault("animation.advancebatchsize", 50)
	viper.SetDefault("animation.encodebatchsize", 2)
	viper.SetDefault("animation.ffmpegpath", "ffmpeg")
	viper.SetDefault("animation.workdir", "")

	viper.SetDefault("retention.enabled", true)

	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.host", "0.0.0.0")
	viper.SetDefault("web.port", "8080")
}
