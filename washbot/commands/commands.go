package commands

import (
	"github.com/disgoorg/disgo/discord"
)

var Commands = []discord.ApplicationCommandCreate{
	Start,
	Cancel,
	Help,
	MyBookings,
	History,
	Version,
}

var Start = discord.SlashCommandCreate{
	Name:        "start",
	Description: "Начать работу с ботом (или начать сначала)",
}

var Cancel = discord.SlashCommandCreate{
	Name:        "cancel",
	Description: "Отменить текущее действие",
}

var Help = discord.SlashCommandCreate{
	Name:        "help",
	Description: "Справка по боту",
}

var MyBookings = discord.SlashCommandCreate{
	Name:        "my_bookings",
	Description: "Показать активные записи на стирку",
}

var History = discord.SlashCommandCreate{
	Name:        "history",
	Description: "История записей на стирку",
}

var Version = discord.SlashCommandCreate{
	Name:        "version",
	Description: "Версия бота",
}
