package service

import "math/rand/v2"

var (
	nicknameAdjectives = []string{
		"Brave", "Quiet", "Swift", "Lucky", "Clever", "Sunny", "Mighty", "Gentle",
		"Bold", "Calm", "Eager", "Fuzzy", "Happy", "Jolly", "Keen", "Merry",
		"Nimble", "Proud", "Rapid", "Silly", "Tiny", "Witty", "Zesty", "Cosmic",
	}
	nicknameNouns = []string{
		"Otter", "Fox", "Panda", "Falcon", "Tiger", "Koala", "Badger", "Dolphin",
		"Eagle", "Hedgehog", "Lynx", "Moose", "Owl", "Penguin", "Rabbit", "Raccoon",
		"Seal", "Sparrow", "Turtle", "Walrus", "Wolf", "Yak", "Zebra", "Comet",
	}
)

// randomNickname returns an "Adjective Noun" pair.
func randomNickname() string {
	return nicknameAdjectives[rand.IntN(len(nicknameAdjectives))] + " " +
		nicknameNouns[rand.IntN(len(nicknameNouns))]
}
