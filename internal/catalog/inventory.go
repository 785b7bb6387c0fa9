package catalog

var (
	iconFlame     = Icon{Name: "flame", Glyph: "🔥"}
	iconSkull     = Icon{Name: "skull", Glyph: "💀"}
	iconActivity  = Icon{Name: "activity", Glyph: "〰"}
	iconCrosshair = Icon{Name: "crosshair", Glyph: "⌖"}
	iconRadio     = Icon{Name: "radio", Glyph: "📻"}
	iconZap       = Icon{Name: "zap", Glyph: "⚡"}
	iconEye       = Icon{Name: "eye", Glyph: "👁"}
	iconShield    = Icon{Name: "shield", Glyph: "🛡"}
	iconCpu       = Icon{Name: "cpu", Glyph: "▣"}
)

// Inventory is the storefront's item table.
func Inventory() *Catalog {
	return New(
		Entry{
			ID:          IntID(1),
			Name:        "MALORIAN_ARMS_3516",
			Category:    CategoryWeapons,
			Rarity:      RarityLegendary,
			Price:       PriceUndisclosed,
			Status:      StatusPreOrder,
			Description: "Personal sidearm of a legend. Devastating firepower.",
			Icon:        &iconFlame,
		},
		Entry{
			ID:          IntID(2),
			Name:        "GUTS_SHOTGUN",
			Category:    CategoryWeapons,
			Rarity:      RarityEpic,
			Price:       "25,000",
			Status:      StatusAvailable,
			Description: "Heavy shotgun with brutal recoil.",
			Icon:        &iconSkull,
		},
		Entry{
			ID:          IntID(3),
			Name:        "MONOWIRE",
			Category:    CategoryWeapons,
			Rarity:      RarityLegendary,
			Price:       "32,000",
			Status:      StatusAvailable,
			Description: "Monomolecular whip. Cuts through enemies in silence.",
			Icon:        &iconActivity,
		},
		Entry{
			ID:          IntID(4),
			Name:        "ERATA_KATANA",
			Category:    CategoryWeapons,
			Rarity:      RarityEpic,
			Price:       "18,500",
			Status:      StatusAvailable,
			Description: "Thermal blade. Deals fire damage to the target.",
			Icon:        &iconCrosshair,
		},
		Entry{
			ID:          IntID(5),
			Name:        "PROJECTILE_LAUNCHER",
			Category:    CategoryWeapons,
			Rarity:      RarityRare,
			Price:       "15,000",
			Status:      StatusSoldOut,
			Description: "Wrist mounted grenade launcher. Out of stock due to embargo.",
			Icon:        &iconCrosshair,
		},
		Entry{
			ID:          IntID(6),
			Name:        "SKI_PPY",
			Category:    CategoryWeapons,
			Rarity:      RarityEpic,
			Price:       "50,000",
			Status:      StatusSoldOut,
			Description: "Smart gun with an onboard AI. The AI talks a lot.",
			Icon:        &iconRadio,
		},
		Entry{
			ID:          IntID(7),
			Name:        "SANDY_MK5_WARP",
			Category:    CategoryCyberware,
			Rarity:      RarityLegendary,
			Price:       "85,000",
			Status:      StatusPreOrder,
			Description: "Experimental build. Slows time by 90%.",
			Icon:        &iconZap,
		},
		Entry{
			ID:          IntID(8),
			Name:        "GORILLA_ARMS",
			Category:    CategoryCyberware,
			Rarity:      RarityEpic,
			Price:       "12,500",
			Status:      StatusAvailable,
			Description: "Raises melee strength and door breaching.",
			Icon:        &iconActivity,
		},
		Entry{
			ID:          IntID(9),
			Name:        "KIROSHI_OPTICS_V3",
			Category:    CategoryCyberware,
			Rarity:      RarityRare,
			Price:       "5,200",
			Status:      StatusAvailable,
			Description: "Scan enemies, see through walls, 10x zoom.",
			Icon:        &iconEye,
		},
		Entry{
			ID:          IntID(10),
			Name:        "SUBDERMAL_ARMOR",
			Category:    CategoryCyberware,
			Rarity:      RarityRare,
			Price:       "4,000",
			Status:      StatusAvailable,
			Description: "Armor under the skin. +200 armor.",
			Icon:        &iconShield,
		},
		Entry{
			ID:          IntID(11),
			Name:        "NETWATCH_DRIVER",
			Category:    CategoryCyberware,
			Rarity:      RarityLegendary,
			Price:       "45,000",
			Status:      StatusAvailable,
			Description: "Hacks 60% faster. Spreads viruses automatically.",
			Icon:        &iconCpu,
		},
		Entry{
			ID:          IntID(12),
			Name:        "TITANIUM_BONES",
			Category:    CategoryCyberware,
			Rarity:      RarityRare,
			Price:       "3,000",
			Status:      StatusSoldOut,
			Description: "Carry capacity increased by 60%.",
			Icon:        &iconShield,
		},
	)
}
