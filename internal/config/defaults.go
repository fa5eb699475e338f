package config

import (
	"time"

	"github.com/spf13/viper"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.token_file", "apikey.txt")
	v.SetDefault("telegram.server_url", "https://api.telegram.org")
	v.SetDefault("telegram.request_timeout", 15*time.Second)
	v.SetDefault("telegram.trace_bodies", false)

	v.SetDefault("database.path", "./mybot.sqlite")
	v.SetDefault("database.max_open_conns", 16)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("dispatcher.triggers", []string{"Echo *", "Hi!", "* is *", `*\?`, "!ls"})
	v.SetDefault("dispatcher.poll_timeout", time.Second)
	v.SetDefault("dispatcher.idle_sleep", 100*time.Millisecond)
	v.SetDefault("dispatcher.stale_after", 5*time.Minute)
	v.SetDefault("dispatcher.initial_offset", -100)
	v.SetDefault("dispatcher.max_in_flight", 0)
	v.SetDefault("dispatcher.allowed_updates", []string{"message"})

	v.SetDefault("scheduler.tasks.kv_expire.enabled", true)
	v.SetDefault("scheduler.tasks.kv_expire.schedule", "0 */5 * * * *")
	v.SetDefault("scheduler.tasks.sql_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.sql_maintenance.schedule", "0 30 4 * * *")
}
