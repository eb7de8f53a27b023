// lerocia-cli отладочный клиент: играет по протоколу через KCP/UDP,
// читает админский REST API и слушает шину событий JetStream.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
)

func main() {
	var (
		command  = flag.String("cmd", "play", "Команда: play, stats, characters, world-items, events")
		kcpAddr  = flag.String("kcp", "localhost:7777", "KCP адрес сервера")
		udpAddr  = flag.String("udp", "localhost:7778", "UDP адрес сервера (пусто отключает)")
		name     = flag.String("name", "tester", "Имя персонажа")
		charID   = flag.Int("id", 1, "ID персонажа")
		apiURL   = flag.String("api", "http://localhost:8088", "Адрес REST API")
		user     = flag.String("user", "admin", "Пользователь REST API")
		password = flag.String("password", os.Getenv("LEROCIA_ADMIN_PASSWORD"), "Пароль REST API")
		kind     = flag.String("kind", "", "Фильтр characters: player, npc, body")
		natsURL  = flag.String("nats", "nats://localhost:4222", "NATS URL")
		stream   = flag.String("stream", "LEROCIA", "Стрим JetStream")
		types    = flag.String("types", "", "Типы событий через запятую")
	)
	flag.Parse()

	var err error
	switch *command {
	case "play":
		err = play(playOptions{KCPAddr: *kcpAddr, UDPAddr: *udpAddr, Name: *name, CharacterID: *charID})
	case "stats", "characters", "world-items":
		path := "/api/" + *command
		if *command == "characters" && *kind != "" {
			path += "?kind=" + *kind
		}
		err = query(*apiURL, *user, *password, path)
	case "events":
		err = tailEvents(*natsURL, *stream, parseStringList(*types))
	default:
		fmt.Printf("Неизвестная команда: %s\n", *command)
		fmt.Println("Доступные команды: play, stats, characters, world-items, events")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", *command, err)
	}
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
