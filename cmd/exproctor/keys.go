package main

import (
	"encoding/base64"
	"fmt"

	"github.com/gorilla/securecookie"
	"github.com/urfave/cli/v2"
)

var keysCommand = &cli.Command{
	Name:  "keys",
	Usage: "Generate LOCAL_URL_HASH_KEY and LOCAL_URL_BLOCK_KEY values",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "block-size",
			Usage: "Block key size in bytes (16, 24 or 32)",
			Value: 32,
		},
	},
	Action: func(c *cli.Context) error {
		size := c.Int("block-size")
		if size != 16 && size != 24 && size != 32 {
			return fmt.Errorf("block-size must be 16, 24 or 32")
		}

		fmt.Printf("LOCAL_URL_HASH_KEY=%s\n", base64.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(64)))
		fmt.Printf("LOCAL_URL_BLOCK_KEY=%s\n", base64.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(size)))
		return nil
	},
}
